package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/chkit/internal/config"
)

const defaultDir = "configs"

var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// ErrProfileExists is returned by Save when the alias is taken and
// overwriting was not asked for.
var ErrProfileExists = errors.New("profile already exists")

// Profile is a saved environment: one config file per ClickHouse target.
type Profile struct {
	Name        string
	Path        string
	Protocol    string
	Environment string
	Database    string
	Modified    time.Time
}

func newProfile(path string, cfg *config.Config, modified time.Time) Profile {
	base := filepath.Base(path)
	return Profile{
		Name:        strings.TrimSuffix(base, filepath.Ext(base)),
		Path:        path,
		Protocol:    cfg.Database.Protocol,
		Environment: cfg.Environment,
		Database:    cfg.Database.Database,
		Modified:    modified,
	}
}

// Manager keeps environment profiles as YAML config files in a directory.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir}
}

func (m *Manager) Directory() string {
	return m.dir
}

// List returns all profiles sorted by name, filtered by protocol when one
// is given. Files that do not load as a config are skipped.
func (m *Manager) List(expectedProtocol string) ([]Profile, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		cfg, err := config.LoadConfig(path)
		if err != nil {
			continue
		}
		if expectedProtocol != "" && cfg.Database.Protocol != expectedProtocol {
			continue
		}

		var modified time.Time
		if info, err := entry.Info(); err == nil {
			modified = info.ModTime()
		}
		profiles = append(profiles, newProfile(path, cfg, modified))
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Save writes cfg under alias. An empty alias is derived from the
// environment name and the current time.
func (m *Manager) Save(alias string, cfg *config.Config, overwrite bool) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("config cannot be nil")
	}

	base := strings.TrimSpace(alias)
	if base == "" {
		base = fmt.Sprintf("%s-%s", cfg.Environment, time.Now().Format("20060102_150405"))
	}
	if isYAML(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	path := filepath.Join(m.dir, withYAMLExt(sanitizeName(base)))

	if _, err := os.Stat(path); err == nil && !overwrite {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileExists, path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Profile{}, err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Profile{}, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Profile{}, err
	}

	return newProfile(path, cfg, time.Now()), nil
}

// Load reads a profile by alias or file path.
func (m *Manager) Load(alias string) (*config.Config, error) {
	path, err := m.resolve(alias)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

func (m *Manager) Delete(alias string) error {
	path, err := m.resolve(alias)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("profile not found: %s", alias)
	}
	return os.Remove(path)
}

// resolve maps an alias to its file; anything with a path separator is
// taken as a path already.
func (m *Manager) resolve(alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return "", fmt.Errorf("profile alias cannot be empty")
	}
	if strings.ContainsRune(alias, os.PathSeparator) {
		return alias, nil
	}
	return filepath.Join(m.dir, withYAMLExt(alias)), nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func withYAMLExt(name string) string {
	if isYAML(name) {
		return name
	}
	return name + ".yaml"
}

func sanitizeName(input string) string {
	cleaned := strings.Trim(fileNameSanitizer.ReplaceAllString(input, "_"), "_")
	if cleaned == "" {
		return "profile"
	}
	return cleaned
}
