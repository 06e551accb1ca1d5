package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
)

// DefaultMaxImageSide caps the longer side of decoded bitmaps, in pixels.
const DefaultMaxImageSide = 1024

// Settings are user defaults read from the TOML settings file. Flags
// override them per invocation.
//
//	[generate]
//	order = 7
//	card_radius = 40
//	formats = ["pdf", "json"]
//
//	[server]
//	addr = ":9090"
//	redis_url = "redis://localhost:6379/0"
type Settings struct {
	Generate pipeline.Options `toml:"generate"`
	Images   ImageSettings    `toml:"images"`
	Server   ServerSettings   `toml:"server"`
	Cache    CacheSettings    `toml:"cache"`

	// Path is the file the settings were read from, empty if none.
	Path string `toml:"-"`
}

// ImageSettings controls image decoding.
type ImageSettings struct {
	MaxSide int `toml:"max_side"`
}

// ServerSettings configures "spotmatch serve".
type ServerSettings struct {
	Addr           string        `toml:"addr"`
	RedisURL       string        `toml:"redis_url"`
	MaxImages      int           `toml:"max_images"`
	MaxUploadMB    int64         `toml:"max_upload_mb"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// CacheSettings configures the local cache.
type CacheSettings struct {
	Disabled bool   `toml:"disabled"`
	Dir      string `toml:"dir"`
}

// maxImageSide returns the configured bitmap limit. Negative values disable
// downsizing.
func (s Settings) maxImageSide() int {
	switch {
	case s.Images.MaxSide < 0:
		return 0
	case s.Images.MaxSide == 0:
		return DefaultMaxImageSide
	default:
		return s.Images.MaxSide
	}
}

// loadSettings reads the settings file at path, or the default location when
// path is empty. A missing default file yields zero settings; a missing
// explicit file is an error.
func loadSettings(path string) (Settings, error) {
	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err != nil {
			return Settings{}, nil
		}
		path = filepath.Join(dir, configFileName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Settings{}, nil
		}
	}

	var s Settings
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Settings{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read settings %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Settings{}, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown settings %s", path, strings.Join(keys, ", "))
	}
	if err := s.validate(); err != nil {
		return Settings{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", path)
	}
	s.Path = path
	return s, nil
}

func (s *Settings) validate() error {
	g := &s.Generate
	if g.Order != 0 {
		if err := errors.ValidateOrder(g.Order); err != nil {
			return err
		}
	}
	if g.OnFailure != "" {
		if err := pipeline.ValidateFailurePolicy(g.OnFailure); err != nil {
			return err
		}
	}
	if len(g.Formats) > 0 {
		g.Formats = pipeline.ParseFormats(strings.Join(g.Formats, ","))
		if err := pipeline.ValidateFormats(g.Formats); err != nil {
			return err
		}
	}
	if s.Server.MaxImages < 0 || s.Server.MaxUploadMB < 0 || s.Server.RequestTimeout < 0 {
		return fmt.Errorf("server limits must not be negative")
	}
	return nil
}

// configCommand creates the settings inspection command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the settings file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the loaded settings as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.Settings.Path == "" {
				fmt.Fprintln(c.Out, "# no settings file, showing defaults")
			} else {
				fmt.Fprintf(c.Out, "# %s\n", c.Settings.Path)
			}
			return toml.NewEncoder(c.Out).Encode(c.Settings)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the default settings file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := configDir()
			if err != nil {
				return fmt.Errorf("get config dir: %w", err)
			}
			fmt.Fprintln(c.Out, filepath.Join(dir, configFileName))
			return nil
		},
	})

	return cmd
}
