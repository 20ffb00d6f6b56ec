package imports

import (
	"encoding/csv"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// Tracks maps an image label to the 2D location of each tracked point id in it.
type Tracks map[string]map[int]r2.Point

// ReadTracks reads a comma separated file of label,point,x,y rows. A first row whose
// point column is not an integer is treated as a header.
func ReadTracks(file string) (_ Tracks, err error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	csvReader := csv.NewReader(f)
	csvReader.Comment = '#'
	csvReader.FieldsPerRecord = 4
	csvReader.TrimLeadingSpace = true

	tracks := make(Tracks)
	for first := true; ; first = false {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", file)
		}
		line, _ := csvReader.FieldPos(0)
		id, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			if first {
				continue
			}
			return nil, errors.Wrapf(err, "%s:%d point id", file, line)
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err := multierr.Combine(errX, errY); err != nil {
			return nil, errors.Wrapf(err, "%s:%d coordinates", file, line)
		}

		label := strings.TrimSpace(record[0])
		if tracks[label] == nil {
			tracks[label] = make(map[int]r2.Point)
		}
		if _, dup := tracks[label][id]; dup {
			return nil, errors.Errorf("%s:%d: point %d seen twice in %s", file, line, id, label)
		}
		tracks[label][id] = r2.Point{X: x, Y: y}
	}
	return tracks, nil
}

// Labels returns the image labels in sorted order.
func (t Tracks) Labels() []string {
	labels := lo.Keys(map[string]map[int]r2.Point(t))
	slices.Sort(labels)
	return labels
}

// Common returns the sorted ids of the points tracked in every one of labels.
func (t Tracks) Common(labels []string) []int {
	if len(labels) == 0 {
		return nil
	}
	ids := lo.Filter(lo.Keys(t[labels[0]]), func(id int, _ int) bool {
		return lo.EveryBy(labels, func(label string) bool {
			_, ok := t[label][id]
			return ok
		})
	})
	slices.Sort(ids)
	return ids
}
