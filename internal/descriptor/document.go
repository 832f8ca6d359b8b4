package descriptor

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/goccy/go-yaml"
)

// Document is the on-disk form of a descriptor list (YAML or JSON).
type Document struct {
	Workspace    string    `json:"workspace,omitempty" description:"Base directory for local paths that are not set explicitly. Relative to the document."`
	Defaults     Defaults  `json:"defaults,omitzero" description:"Values applied to every repository entry that leaves them empty."`
	Repositories []Entry   `json:"repositories" required:"true" nullable:"false"`
	Metadata     *Metadata `json:"metadata,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Metadata records where a generated document came from.
type Metadata struct {
	GeneratedBy string `json:"generated_by,omitempty"`
	Owner       string `json:"owner,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

type Defaults struct {
	Branch   string   `json:"branch,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	Private  bool     `json:"private,omitempty"`
	TokenEnv string   `json:"token_env,omitempty" pattern:"^[A-Za-z_][A-Za-z0-9_]*$"`

	_ struct{} `additionalProperties:"false"`
}

type Entry struct {
	ID           string   `json:"id" required:"true" pattern:"^[A-Za-z0-9._-]+$"`
	RemoteURL    string   `json:"remote_url" required:"true" minLength:"1"`
	Branch       string   `json:"branch,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	PartialPaths []string `json:"partial_paths,omitempty"`
	LocalPath    string   `json:"local_path,omitempty"`
	Private      bool     `json:"private,omitempty"`
	TokenEnv     string   `json:"token_env,omitempty" pattern:"^[A-Za-z_][A-Za-z0-9_]*$"`

	_ struct{} `additionalProperties:"false"`
}

// Load reads a descriptor document from disk. Relative paths inside the
// document are resolved against the document's directory.
func Load(filename string) (*Store, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file %s: %w", filename, err)
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	return Parse(bs, filepath.Dir(abs))
}

func Parse(bs []byte, baseDir string) (*Store, error) {
	doc, err := ParseDocument(bs)
	if err != nil {
		return nil, err
	}
	ds, err := doc.Descriptors(baseDir)
	if err != nil {
		return nil, err
	}
	return NewStore(ds)
}

// ParseDocument validates bs against the document schema and decodes it.
func ParseDocument(bs []byte) (*Document, error) {
	if err := Validate(bs); err != nil {
		return nil, fmt.Errorf("invalid descriptor document: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal descriptor document: %w", err)
	}
	return &doc, nil
}

// Descriptors applies defaults and derives local paths. baseDir anchors
// relative workspace and local paths.
func (doc *Document) Descriptors(baseDir string) ([]Descriptor, error) {
	workspace := doc.Workspace
	if workspace == "" {
		workspace = "."
	}
	if !filepath.IsAbs(workspace) {
		workspace = filepath.Join(baseDir, workspace)
	}

	defaults := Entry{
		Branch:   doc.Defaults.Branch,
		Labels:   doc.Defaults.Labels,
		Private:  doc.Defaults.Private,
		TokenEnv: doc.Defaults.TokenEnv,
	}

	out := make([]Descriptor, 0, len(doc.Repositories))
	for i, e := range doc.Repositories {
		if err := mergo.Merge(&e, defaults); err != nil {
			return nil, fmt.Errorf("repositories[%d]: apply defaults: %w", i, err)
		}
		local := e.LocalPath
		switch {
		case local == "":
			local = filepath.Join(workspace, e.ID)
		case !filepath.IsAbs(local):
			local = filepath.Join(baseDir, local)
		}
		out = append(out, Descriptor{
			ID:           e.ID,
			RemoteURL:    e.RemoteURL,
			Branch:       e.Branch,
			Labels:       append([]string(nil), e.Labels...),
			PartialPaths: append([]string(nil), e.PartialPaths...),
			LocalPath:    local,
			Private:      e.Private,
			TokenEnv:     e.TokenEnv,
		})
	}
	return out, nil
}

// Marshal renders a document as YAML.
func (doc *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(doc)
}
