package records

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/spigell/jobmatch/internal/domain"
)

// Dataset is the on-disk form of a Memory store plus the activity log that travels with it.
type Dataset struct {
	Companies    []domain.Company       `json:"companies"`
	Jobs         []domain.Job           `json:"jobs"`
	Users        []domain.User          `json:"users"`
	Applications []domain.Application   `json:"applications"`
	Reports      []domain.CustomReport  `json:"custom_reports,omitempty"`
	ReportScores []domain.ReportScore   `json:"report_scores,omitempty"`
	Activity     []domain.ActivityEntry `json:"activity,omitempty"`
	AgentQueries map[string]int         `json:"agent_queries,omitempty"`
}

// LoadFile reads a dataset. A missing or empty file yields an empty dataset.
func LoadFile(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Dataset{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &Dataset{}, nil
	}

	var ds Dataset
	if err := json.NewDecoder(file).Decode(&ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (d *Dataset) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
