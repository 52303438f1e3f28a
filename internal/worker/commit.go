package worker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// datasetYAML is the on-disk data.yml shape for a committed dataset:
// name, creation timestamp, and a tagged access method (only File is
// implemented — a committed result always lives on this node's disk).
type datasetYAML struct {
	Name    string        `yaml:"name"`
	Created time.Time     `yaml:"created"`
	Access  datasetAccess `yaml:"access"`
}

type datasetAccess struct {
	File *fileAccess `yaml:"File,omitempty"`
}

type fileAccess struct {
	Path string `yaml:"path"`
}

// CommitRequest names the temp result to promote into a permanent
// dataset.
type CommitRequest struct {
	ResultName  string
	DatasetName string
}

// Commit promotes a temp_results directory into a permanent dataset
// under data_path, per §4.3.3: if a dataset of that name already
// exists, only its data directory is replaced in place and the
// existing data.yml (owners, description, original created timestamp)
// is left untouched; otherwise a fresh dataset directory and data.yml
// are created.
func (w *Worker) Commit(req CommitRequest) error {
	srcDir := filepath.Join(w.Config.Paths.TempResults, req.ResultName)
	if _, err := os.Stat(srcDir); err != nil {
		return ioErr("commit", "result directory %s not found: %v", srcDir, err)
	}

	datasetDir := filepath.Join(w.Config.Paths.Data, req.DatasetName)
	dataSubdir := filepath.Join(datasetDir, "data")

	_, statErr := os.Stat(datasetDir)
	found := statErr == nil

	if found {
		if err := os.RemoveAll(dataSubdir); err != nil {
			return ioErr("commit", "removing existing data dir: %v", err)
		}
	} else if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		return ioErr("commit", "creating dataset dir: %v", err)
	}

	if err := copyDir(srcDir, dataSubdir); err != nil {
		return ioErr("commit", "copying result into dataset: %v", err)
	}

	if !found {
		doc := datasetYAML{
			Name:    req.DatasetName,
			Created: time.Now().UTC(),
			Access:  datasetAccess{File: &fileAccess{Path: dataSubdir}},
		}
		b, err := yaml.Marshal(doc)
		if err != nil {
			return decodeErr("commit", fmt.Errorf("encoding data.yml: %w", err))
		}
		if err := os.WriteFile(filepath.Join(datasetDir, "data.yml"), b, 0o644); err != nil {
			return ioErr("commit", "writing data.yml: %v", err)
		}
	}

	return os.RemoveAll(srcDir)
}

// FindDataset reports whether data_path holds a dataset named name,
// i.e. whether its data.yml exists; it does not read the file.
func (w *Worker) FindDataset(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(w.Config.Paths.Data, name, "data.yml"))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, ioErr("commit", "statting dataset %s: %v", name, err)
	}
	return true, nil
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
