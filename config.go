package demwb

import (
	"fmt"
	"os"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"
	"sigs.k8s.io/yaml"
)

// Config holds the settings of a run that are not tied to its inputs. It can
// be loaded from a YAML file; command line flags take precedence.
type Config struct {
	Workers int `json:"workers"`
	// OTBLauncher is the command line used to start OTB applications, e.g.
	// "otbcli" or "singularity exec otb.sif otbcli".
	OTBLauncher string `json:"otbLauncher"`
	GDALDEM       string `json:"gdaldem"`
	GDALWarp      string `json:"gdalwarp"`
	GDALTranslate string `json:"gdalTranslate"`
	// CreationOptions are GTiff creation options of the raster products.
	CreationOptions []string `json:"creationOptions"`
	// GDALConfig are KEY=VALUE gdal configuration options.
	GDALConfig []string `json:"gdalConfig"`

	GCSBlockSize  string `json:"gcsBlockSize"`
	GCSNumBlocks  int    `json:"gcsNumBlocks"`
	TileCacheSize int    `json:"tileCacheSize"`

	Progress string `json:"progress"`
}

func DefaultConfig() Config {
	return Config{
		Workers:       DefaultWorkers,
		OTBLauncher:   "otbcli",
		GDALDEM:       "gdaldem",
		GDALWarp:      "gdalwarp",
		GDALTranslate: "gdal_translate",
		GCSBlockSize:  "512k",
		GCSNumBlocks:  1000,
		TileCacheSize: 256,
		Progress:      "1m",
	}
}

// LoadConfig reads the YAML file at filename on top of the defaults.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", filename, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be >=1")
	}
	if _, err := c.OTBCommand(); err != nil {
		return err
	}
	if _, err := c.ProgressInterval(); err != nil {
		return err
	}
	for _, kv := range c.GDALConfig {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("invalid gdal config option %q, expecting KEY=VALUE", kv)
		}
	}
	if c.TileCacheSize <= 0 {
		return fmt.Errorf("tileCacheSize must be >=1")
	}
	return nil
}

// OTBCommand splits OTBLauncher into a command and its leading arguments.
func (c Config) OTBCommand() ([]string, error) {
	argv, err := shellwords.Parse(c.OTBLauncher)
	if err != nil {
		return nil, fmt.Errorf("invalid otb launcher %q: %w", c.OTBLauncher, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty otb launcher")
	}
	return argv, nil
}

func (c Config) ProgressInterval() (time.Duration, error) {
	if c.Progress == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Progress)
	if err != nil {
		return 0, fmt.Errorf("invalid progress interval: %w", err)
	}
	return d, nil
}

// Tools returns the Toolbox configured by c.
func (c Config) Tools(runner Runner) (*Tools, error) {
	launcher, err := c.OTBCommand()
	if err != nil {
		return nil, err
	}
	t := NewTools(runner)
	t.OTBLauncher = launcher
	t.GDALDEM = orDefault(c.GDALDEM, t.GDALDEM)
	t.GDALWarp = orDefault(c.GDALWarp, t.GDALWarp)
	t.GDALTranslate = orDefault(c.GDALTranslate, t.GDALTranslate)
	t.CreationOptions = c.CreationOptions
	t.ConfigOptions = c.GDALConfig
	return t, nil
}
