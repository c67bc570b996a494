package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/adresse-nationale/ban/internal/domain"
	"github.com/adresse-nationale/ban/internal/repository"
)

// Service streams full resource collections as CSV, paging through the
// repository so memory stays flat regardless of table size.
type Service struct {
	repos repository.Repositories
}

func NewService(repos repository.Repositories) *Service {
	return &Service{repos: repos}
}

// WriteCSV streams every record of the resource type to w, one header row
// then one row per record in the collection's default order.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, rt *domain.ResourceType) error {
	repo, ok := s.repos[rt.Name]
	if !ok {
		return fmt.Errorf("no repository for %s", rt.Name)
	}

	buffered := bufio.NewWriterSize(w, 1<<20)
	csvWriter := csv.NewWriter(buffered)

	headers := columnHeaders(rt)
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(headers))
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		page, err := repo.List(ctx, domain.Query{Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", rt.Name, err)
		}
		if len(page.Items) == 0 {
			break
		}

		for _, rec := range page.Items {
			for i, header := range headers {
				row[i] = formatValue(rec[header])
			}
			if err := csvWriter.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			return fmt.Errorf("failed to flush rows: %w", err)
		}

		offset += len(page.Items)
		if offset >= page.Total {
			break
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return buffered.Flush()
}

// columnHeaders lists the exported keys: id, version, every schema field and
// the computed columns.
func columnHeaders(rt *domain.ResourceType) []string {
	headers := []string{"id", "version"}
	for _, f := range rt.Schema.Fields() {
		headers = append(headers, f.Name)
	}
	headers = append(headers, rt.Computed...)
	return headers
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case uuid.UUID:
		return v.String()
	case *domain.Point:
		return fmt.Sprintf("(%g, %g)", v.Lon, v.Lat)
	case []string:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	case []uuid.UUID:
		ids := make([]string, len(v))
		for i, id := range v {
			ids[i] = id.String()
		}
		encoded, err := json.Marshal(ids)
		if err != nil {
			return ""
		}
		return string(encoded)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
