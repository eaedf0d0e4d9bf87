package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	logger "github.com/sirupsen/logrus"

	"github.com/dependency-impact-checker/pkg/depquery"
)

// Checker answers whether any repository in the deployment uses a
// dependency. Implemented by semgrep.Client; stubbed in tests.
type Checker interface {
	AnyRepoUses(deploymentID string, q depquery.Query) bool
}

// Enricher supplies the optional detail columns for impacted dependencies.
type Enricher interface {
	// Enrich returns the package's source repository and its latest
	// release tag. Failures degrade to empty strings.
	Enrich(name string) (sourceRepo, latestRelease string)
}

// Pipeline streams the input CSV to the output CSV, appending an Impact
// column per row. Rows are processed and written strictly in input order;
// one row's remote failure never aborts the run.
type Pipeline struct {
	Input        string
	Output       string
	DeploymentID string
	Checker      Checker
	Enricher     Enricher // nil unless detail columns were requested
}

const impactColumn = "Impact"

func (p *Pipeline) Run() error {
	in, err := os.Open(p.Input)
	if err != nil {
		return fmt.Errorf("open input %q: %w", p.Input, err)
	}
	defer in.Close()

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("input %q has no header row: %w", p.Input, err)
	}

	nameIdx, versionIdx := resolveColumns(header)
	if nameIdx < 0 {
		return fmt.Errorf("input %q must include a 'dependency' or 'name' column", p.Input)
	}

	out, err := os.Create(p.Output)
	if err != nil {
		return fmt.Errorf("create output %q: %w", p.Output, err)
	}
	defer out.Close()

	writer := csv.NewWriter(out)

	outHeader := append([]string(nil), header...)
	impactIdx := indexOf(outHeader, impactColumn)
	if impactIdx < 0 {
		impactIdx = len(outHeader)
		outHeader = append(outHeader, impactColumn)
	}
	if p.Enricher != nil {
		outHeader = append(outHeader, "Source Repo", "Latest Release")
	}
	if err := writer.Write(outHeader); err != nil {
		return fmt.Errorf("write output header: %w", err)
	}

	line := 1 // the header occupies line 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read input row: %w", err)
		}
		line++

		row := make([]string, len(outHeader))
		copy(row, record)

		q := depquery.Query{Name: depquery.Clean(cell(record, nameIdx))}
		if versionIdx >= 0 {
			q.Version = depquery.Clean(cell(record, versionIdx))
		}

		// Blank rows pass through with no lookup; the Impact cell is
		// explicitly blanked in case the input already carried one.
		if q.IsZero() {
			row[impactIdx] = ""
		} else {
			logger.Infof("row %d: checking %s", line, q)
			if p.Checker.AnyRepoUses(p.DeploymentID, q) {
				logger.Warnf("impact match: %s is used in deployment %s", q, p.DeploymentID)
				row[impactIdx] = "Yes"
				if p.Enricher != nil && q.Name != "" {
					row[len(row)-2], row[len(row)-1] = p.Enricher.Enrich(q.Name)
				}
			} else {
				logger.Infof("no match for %s", q)
				row[impactIdx] = "No"
			}
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write output row: %w", err)
		}
		// Flush per row so an interrupted run keeps everything computed
		// so far.
		writer.Flush()
	}

	writer.Flush()
	return writer.Error()
}

// resolveColumns locates the dependency-name and version columns. The name
// column is accepted under two aliases, case-insensitively; "dependency"
// wins when both are present.
func resolveColumns(header []string) (nameIdx, versionIdx int) {
	nameIdx, versionIdx = -1, -1
	depIdx := -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "dependency":
			if depIdx < 0 {
				depIdx = i
			}
		case "name":
			if nameIdx < 0 {
				nameIdx = i
			}
		case "version":
			if versionIdx < 0 {
				versionIdx = i
			}
		}
	}
	if depIdx >= 0 {
		nameIdx = depIdx
	}
	return nameIdx, versionIdx
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
