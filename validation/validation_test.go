package validation

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/kbukum/buildgraph/errors"
)

func TestValidatorCustom(t *testing.T) {
	v := New().
		Custom(true, "a", "never").
		Custom(false, "b", "always")
	if len(v.Errors()) != 1 || v.Errors()[0].Field != "b" {
		t.Errorf("unexpected errors %v", v.Errors())
	}
}

func TestValidatorError(t *testing.T) {
	if err := New().Error(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}

	dir, parallelism := "", -1
	err := New().
		Custom(dir != "", "cache.dir", "is required").
		Custom(parallelism >= 0, "engine.parallelism", "must be at least 0").
		Error()
	if apperrors.CodeOf(err) != apperrors.ErrCodeInvalidConfig {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
	if !strings.Contains(err.Error(), "cache.dir: is required; engine.parallelism: must be at least 0") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

type redisSection struct {
	Addrs []string `mapstructure:"addrs" validate:"min=1,dive,hostname_port"`
}

type sample struct {
	Mode       string        `mapstructure:"mode" validate:"required,oneof=dir redis"`
	SampleRate float64       `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Redis      redisSection  `mapstructure:"redis"`
	Retries    int           `mapstructure:"max_fetch_retries" validate:"gte=1"`
	Ignored    string        `mapstructure:"-"`
	Nested     *redisSection `mapstructure:"nested" validate:"omitempty"`
}

func TestStructValidateValid(t *testing.T) {
	s := sample{Mode: "dir", SampleRate: 0.5, Redis: redisSection{Addrs: []string{"localhost:6379"}}, Retries: 3}
	if err := Validate(s); err != nil {
		t.Errorf("expected valid struct, got %v", err)
	}
}

func TestStructValidateInvalid(t *testing.T) {
	s := sample{Mode: "ftp", SampleRate: 2, Retries: 0}
	err := Validate(s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"mode: must be one of: dir redis",
		"sample_rate: must be less than or equal to 1",
		"redis.addrs: must have at least 1 entries",
		"max_fetch_retries: must be greater than or equal to 1",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatal("expected AppError")
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 4 {
		t.Errorf("expected 4 field errors, got %v", appErr.Details["fields"])
	}
}

func TestValidatorMerge(t *testing.T) {
	structErr := Validate(sample{Mode: "dir", Redis: redisSection{Addrs: []string{"x"}}, Retries: 1})
	v := New().Merge("ignored", structErr).Merge("other", errors.New("plain")).Merge("nil", nil)
	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %v", v.Errors())
	}
	if v.Errors()[0].Field != "redis.addrs[0]" {
		t.Errorf("unexpected merged field %q", v.Errors()[0].Field)
	}
	if v.Errors()[1].Field != "other" || v.Errors()[1].Message != "plain" {
		t.Errorf("unexpected plain merge %v", v.Errors()[1])
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("MaxFetchRetries"); got != "max_fetch_retries" {
		t.Errorf("unexpected %q", got)
	}
}
