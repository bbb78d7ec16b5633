package executors

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/models"
)

type GitCloneExecutor struct {
	SourceDir string
	Logger    *zap.Logger
}

func NewGitCloneExecutor(sourceDir string, logger *zap.Logger) *GitCloneExecutor {
	return &GitCloneExecutor{
		SourceDir: sourceDir,
		Logger:    logger.Named("git"),
	}
}

type UnsafePathError struct {
	Name string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("%q can not be used as a source path", e.Name)
}

// Path is where the sources of a (project, version) are checked out. Names
// with "." or ".." elements are refused so that every checkout stays in its
// own directory under SourceDir.
func (g *GitCloneExecutor) Path(projectName, version string) (string, error) {
	for _, name := range []string{projectName, version} {
		for _, element := range strings.FieldsFunc(name, isSeparator) {
			if element == "." || element == ".." {
				return "", &UnsafePathError{Name: name}
			}
		}
	}

	root := filepath.Clean(g.SourceDir)
	path := filepath.Join(root, filepath.FromSlash(projectName), filepath.FromSlash(version))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", &UnsafePathError{Name: projectName + "@" + version}
	}
	return path, nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\' || r == os.PathSeparator
}

func (g *GitCloneExecutor) Execute(ctx context.Context, build *models.Build, logf LogFunc) (models.StepOutput, error) {
	path, err := g.Path(build.Project.Name, build.Version)
	if err != nil {
		return nil, err
	}
	log := g.Logger.With(lf.BuildID(build.ID), lf.ProjectName(build.Project.Name), lf.Version(build.Version))
	progress := &lineWriter{logf: logf}
	defer progress.Flush()

	repo, err := git.PlainOpen(path)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "Failed to create source directory")
		}
		logf("Cloning \"" + build.Project.Source + "\" into \"" + path + "\".\n")
		log.Info("Cloning repository", zap.String("url", build.Project.Source))
		repo, err = git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
			URL:      build.Project.Source,
			Progress: progress,
		})
		if err != nil {
			return nil, errors.Wrap(err, "Failed to clone repository")
		}
	case err != nil:
		return nil, errors.Wrap(err, "Failed to open repository")
	default:
		logf("Fetching updates into \"" + path + "\".\n")
		log.Info("Fetching repository")
		err = repo.FetchContext(ctx, &git.FetchOptions{
			Tags:     git.AllTags,
			Force:    true,
			Progress: progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, errors.Wrap(err, "Failed to fetch repository")
		}
	}

	hash, err := resolveVersion(repo, build.Version)
	if err != nil {
		return nil, err
	}
	if err := checkout(repo, hash); err != nil {
		return nil, err
	}
	logf("Checked out " + hash.String() + ".\n")
	log.Info("Checked out version", zap.String("commit", hash.String()))

	return models.StepOutput{"path": path}, nil
}

// resolveVersion tries the version as a tag, as a branch of origin and
// finally as any revision git understands.
func resolveVersion(repo *git.Repository, version string) (plumbing.Hash, error) {
	candidates := []string{
		plumbing.NewTagReferenceName(version).String(),
		plumbing.NewRemoteReferenceName(git.DefaultRemoteName, version).String(),
		version,
	}
	for _, candidate := range candidates {
		hash, err := repo.ResolveRevision(plumbing.Revision(candidate))
		if err == nil {
			return *hash, nil
		}
	}
	return plumbing.ZeroHash, errors.Errorf("Failed to resolve version %q", version)
}

func checkout(repo *git.Repository, hash plumbing.Hash) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "Failed to open worktree")
	}
	err = worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true})
	if err != nil {
		return errors.Wrapf(err, "Failed to checkout %s", hash)
	}
	return worktree.Clean(&git.CleanOptions{Dir: true})
}

// lineWriter turns git progress output into log lines.
type lineWriter struct {
	logf LogFunc
	buf  []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexAny(w.buf, "\r\n")
		if idx < 0 {
			break
		}
		if line := bytes.TrimSpace(w.buf[:idx]); len(line) > 0 {
			w.logf(string(line) + "\n")
		}
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	if line := bytes.TrimSpace(w.buf); len(line) > 0 {
		w.logf(string(line) + "\n")
	}
	w.buf = nil
}
