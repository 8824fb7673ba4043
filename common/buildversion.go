package common

import (
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
)

const shortCommitLen = 8

// GetCommitHash returns the short HEAD commit of the repository containing
// the working directory or, failing that, the executable. It returns
// "unknown" outside a git checkout.
func GetCommitHash() string {
	paths := make([]string, 0, 2)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Dir(exe))
	}
	for _, p := range paths {
		if hash := CommitHashAt(p); hash != "" {
			return hash
		}
	}
	return "unknown"
}

// CommitHashAt returns the short HEAD commit of the repository at or above
// path, or "" when there is none.
func CommitHashAt(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	hash := head.Hash().String()
	if len(hash) > shortCommitLen {
		hash = hash[:shortCommitLen]
	}
	return hash
}
