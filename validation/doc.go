// Package validation checks configuration before anything is built from it.
//
// Struct tag validation (go-playground/validator) covers per-field rules;
// the programmatic Validator covers rules tags cannot express, such as
// duration strings that must parse. Both report an
// INVALID_CONFIG *errors.AppError whose message names every failing field by
// its configuration key.
//
//	v := validation.New().Merge("", validation.Validate(cfg))
//	v.Custom(cfg.TTL == "" || isDuration(cfg.TTL), "ttl", "must be a duration such as 3s")
//	err := v.Error()
package validation
