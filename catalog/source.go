package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/liamcoop/decisions/rules"
)

// Source supplies table definitions to a Catalog
type Source interface {
	// Name identifies the source in logs and metrics
	Name() string

	// Definitions returns every definition the source currently holds
	Definitions(ctx context.Context) ([]rules.TableDefinition, error)
}

// FSSource reads YAML and JSON definition files from a file system.
// A definition without a name takes the file name without extension.
type FSSource struct {
	name string
	fsys fs.FS
}

// NewFSSource creates a source over fsys, for example an embed.FS
func NewFSSource(name string, fsys fs.FS) *FSSource {
	return &FSSource{name: name, fsys: fsys}
}

// NewDirSource creates a source over a directory on disk
func NewDirSource(dir string) *FSSource {
	return &FSSource{name: "dir:" + dir, fsys: os.DirFS(dir)}
}

func (s *FSSource) Name() string { return s.name }

// Definitions walks the file system in lexical order
func (s *FSSource) Definitions(ctx context.Context) ([]rules.TableDefinition, error) {
	var defs []rules.TableDefinition

	err := fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		base := path.Base(p)
		if p != "." && strings.HasPrefix(base, ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		format, ok := rules.FormatFromPath(p)
		if !ok {
			return nil
		}

		data, err := fs.ReadFile(s.fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		def, err := rules.ParseDefinition(data, format)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if strings.TrimSpace(def.Name) == "" {
			def.Name = strings.TrimSuffix(base, path.Ext(base))
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}

	return defs, nil
}

// RepositorySource exposes the active definitions of a DefinitionStore
type RepositorySource struct {
	repo rules.DefinitionStore
}

// NewRepositorySource wraps repo as a Source
func NewRepositorySource(repo rules.DefinitionStore) *RepositorySource {
	return &RepositorySource{repo: repo}
}

func (s *RepositorySource) Name() string { return "repository" }

func (s *RepositorySource) Definitions(ctx context.Context) ([]rules.TableDefinition, error) {
	defs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.Name(), err)
	}
	return defs, nil
}
