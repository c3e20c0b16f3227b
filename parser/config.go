package parser

// DefaultBuildFileName is the build file looked up in every package.
const DefaultBuildFileName = "BUILD.yaml"

// DefaultDepAttribute is the attribute holding a rule's dependency labels.
const DefaultDepAttribute = "deps"

// Config holds parser settings.
type Config struct {
	// Root is the root cell's directory on disk.
	Root string `mapstructure:"root" validate:"required"`
	// BuildFileName is the name of the build file in each package directory.
	BuildFileName string `mapstructure:"build_file_name" validate:"required,excludesall=/"`
	// DepAttributes lists the attributes whose values are dependency labels.
	DepAttributes []string `mapstructure:"dep_attributes" validate:"min=1,dive,required"`
	// Cells maps non-root cell names to their directories.
	Cells map[string]string `mapstructure:"cells" validate:"dive,keys,required,endkeys,required"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.BuildFileName == "" {
		c.BuildFileName = DefaultBuildFileName
	}
	if len(c.DepAttributes) == 0 {
		c.DepAttributes = []string{DefaultDepAttribute}
	}
}
