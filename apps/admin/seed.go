package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/fs"
)

const defaultCataloguePath = "seed/catalogue.json"

type catalogue struct {
	Trails []struct {
		course.NewTrail
		Chapters []course.NewChapter `json:"chapters"`
	} `json:"trails"`
	Medals []gamification.Medal `json:"medals"`
}

func readCatalogue(path string) (catalogue, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = fs.ReadFile(appfs.FS, defaultCataloguePath)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return catalogue{}, errors.Wrap(err, "reading catalogue")
	}

	var cat catalogue
	if err = json.Unmarshal(data, &cat); err != nil {
		return catalogue{}, errors.Wrap(err, "decoding catalogue")
	}
	return cat, nil
}

// seed loads the catalogue. Trails and medals are matched by title and name: existing ones are skipped.
func (cli *commandLine) seed(ctx context.Context, path string) error {
	cat, err := readCatalogue(path)
	if err != nil {
		return err
	}

	trails, err := cli.courseSvc.ListTrails(ctx)
	if err != nil {
		return errors.Wrap(err, "listing trails")
	}
	existingTrails := make(map[string]bool, len(trails))
	for _, t := range trails {
		existingTrails[t.Title] = true
	}

	var nTrails, nChapters int
	for _, nt := range cat.Trails {
		if existingTrails[nt.Title] {
			continue
		}
		trail, err := cli.courseSvc.CreateTrail(ctx, nt.NewTrail)
		if err != nil {
			return errors.Wrapf(err, "creating trail %q", nt.Title)
		}
		nTrails++
		for _, nc := range nt.Chapters {
			nc.TrailID = trail.ID
			if _, err = cli.courseSvc.AddChapter(ctx, nc); err != nil {
				return errors.Wrapf(err, "adding chapter %q", nc.Title)
			}
			nChapters++
		}
	}

	medals, err := cli.gameSvc.ListMedals(ctx)
	if err != nil {
		return errors.Wrap(err, "listing medals")
	}
	existingMedals := make(map[string]bool, len(medals))
	for _, m := range medals {
		existingMedals[m.Name] = true
	}
	var nMedals int
	for _, m := range cat.Medals {
		if existingMedals[m.Name] {
			continue
		}
		if _, err = cli.gameSvc.CreateMedal(ctx, m); err != nil {
			return errors.Wrapf(err, "creating medal %q", m.Name)
		}
		nMedals++
	}

	fmt.Fprintf(cli.out, "seeded %d trails, %d chapters and %d medals\n", nTrails, nChapters, nMedals)
	return nil
}
