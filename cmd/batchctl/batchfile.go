package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"batch-agent/pkg/types"
)

// BatchFile describes a batch group to submit. YAML and JSON are both
// accepted.
//
//	batchLogId: NIGHTLY-20240101
//	adminEmail: ops@example.com
//	jobs:
//	  - programId: LOAD
//	    path: /opt/batch/load.sh
//	    param: "20240101"
type BatchFile struct {
	BatchLogID string     `yaml:"batchLogId"`
	RetryCount int        `yaml:"retryCount"`
	AdminEmail string     `yaml:"adminEmail"`
	Jobs       []BatchJob `yaml:"jobs"`
}

// BatchJob is one program of a batch file.
type BatchJob struct {
	ProgramID  string `yaml:"programId"`
	Path       string `yaml:"path"`
	Param      string `yaml:"param"`
	AdminEmail string `yaml:"adminEmail"`
}

var errNoJobs = errors.New("batch file has no jobs")

// LoadBatchFile reads and parses a batch file.
func LoadBatchFile(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBatchFile(data)
}

// ParseBatchFile parses batch file contents.
func ParseBatchFile(data []byte) (*BatchFile, error) {
	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(bf.Jobs) == 0 {
		return nil, errNoJobs
	}
	for i, j := range bf.Jobs {
		if j.Path == "" {
			return nil, fmt.Errorf("job %d: path is required", i+1)
		}
	}
	return &bf, nil
}

// BatchFromPaths builds a batch that runs paths in the given order.
func BatchFromPaths(paths []string, param string) *BatchFile {
	bf := &BatchFile{}
	for _, p := range paths {
		bf.Jobs = append(bf.Jobs, BatchJob{Path: p, Param: param})
	}
	return bf
}

// Items converts the batch into request items, numbered in file order. A
// missing batch log id is generated, and a missing program id defaults to the
// artifact's base name.
func (bf *BatchFile) Items() []types.JobRequestItem {
	if bf.BatchLogID == "" {
		bf.BatchLogID = uuid.NewString()
	}

	items := make([]types.JobRequestItem, len(bf.Jobs))
	for i, j := range bf.Jobs {
		admin := j.AdminEmail
		if admin == "" {
			admin = bf.AdminEmail
		}
		program := j.ProgramID
		if program == "" {
			program = filepath.Base(j.Path)
		}
		items[i] = types.JobRequestItem{
			BatchLogID: bf.BatchLogID,
			RetryCount: bf.RetryCount,
			ProgramID:  program,
			Order:      i + 1,
			Path:       j.Path,
			Param:      j.Param,
			AdminEmail: admin,
		}
	}
	return items
}
