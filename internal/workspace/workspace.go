package workspace

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
	"github.com/KaramelBytes/dqlens-cli/internal/utils"
)

// FileName is the workspace manifest inside a workspace directory.
const FileName = "workspace.json"

// ErrNotFound is returned when a directory holds no workspace manifest.
var ErrNotFound = errors.New("workspace not found")

// DatasetRef points at the dataset file and how to load it.
type DatasetRef struct {
	Path     string          `json:"path"`
	Options  dataset.Options `json:"options"`
	LoadedAt time.Time       `json:"loaded_at"`
}

// PolicyRef keeps the extracted policy text next to its source path so a
// workspace reopens without re-running extraction.
type PolicyRef struct {
	Path     string    `json:"path"`
	Text     string    `json:"text"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Workspace is a dqlens workspace persisted on disk.
type Workspace struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Dataset     *DatasetRef  `json:"dataset,omitempty"`
	Policy      *PolicyRef   `json:"policy,omitempty"`
	Rules       []rules.Rule `json:"rules"`
	Retired     []string     `json:"retired_rule_ids"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	rootDir string
}

// New constructs an in-memory workspace. Call Save() to persist.
func New(name, description, rootDir string) *Workspace {
	now := time.Now()
	return &Workspace{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Rules:       []rules.Rule{},
		Retired:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
		rootDir:     rootDir,
	}
}

// Load reads workspace.json from dir.
func Load(dir string) (*Workspace, error) {
	path := filepath.Join(dir, FileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "no %s in %s", FileName, dir)
		}
		return nil, eris.Wrap(err, "read workspace")
	}
	var w Workspace
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, eris.Wrap(err, "parse workspace")
	}
	w.rootDir = dir
	return &w, nil
}

// RootDir returns the on-disk workspace directory.
func (w *Workspace) RootDir() string { return w.rootDir }

// Save writes workspace.json atomically.
func (w *Workspace) Save() error {
	if w.rootDir == "" {
		return eris.New("workspace root directory not set")
	}
	if err := utils.EnsureDir(w.rootDir); err != nil {
		return eris.Wrap(err, "ensure dir")
	}
	w.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(w)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(w.rootDir, FileName), data)
}

// SetDataset records a dataset file. The path is stored absolute.
func (w *Workspace) SetDataset(path string, opt dataset.Options) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return eris.Wrapf(err, "resolve %s", path)
	}
	w.Dataset = &DatasetRef{Path: abs, Options: opt, LoadedAt: time.Now()}
	return nil
}

// SetPolicy records the policy source and its extracted text.
func (w *Workspace) SetPolicy(path, text string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	w.Policy = &PolicyRef{Path: path, Text: text, LoadedAt: time.Now()}
}

// Open builds an analysis context from the workspace: the dataset is loaded
// and profiled, the policy text and the rule store are restored.
func (w *Workspace) Open(s Settings, obs Observer) (*Context, error) {
	return w.OpenWith(s, obs, nil)
}

// OpenWith is Open with an already loaded dataset; a nil ds loads the
// workspace's dataset file.
func (w *Workspace) OpenWith(s Settings, obs Observer, ds *dataset.Dataset) (*Context, error) {
	c := NewContext(s, obs)
	if ds == nil && w.Dataset != nil {
		var err error
		ds, err = dataset.LoadFile(w.Dataset.Path, w.Dataset.Options)
		if err != nil {
			return nil, eris.Wrapf(err, "load dataset %s", w.Dataset.Path)
		}
	}
	if ds != nil {
		c.ReplaceDataset(ds)
	}
	if w.Policy != nil {
		c.SetPolicy(w.Policy.Text)
	}
	if err := c.RestoreRules(w.Rules, w.Retired); err != nil {
		return nil, eris.Wrap(err, "restore rules")
	}
	return c, nil
}

// Capture copies the context's rule state back into the workspace.
func (w *Workspace) Capture(c *Context) {
	w.Rules, w.Retired = c.RuleState()
}
