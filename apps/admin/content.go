package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

func (cli *commandLine) generateContent(ctx context.Context, chapterID string, overwrite bool) error {
	svc, err := cli.contentSvc(ctx)
	if err != nil {
		return errors.Wrap(err, "setting up content generation")
	}
	ch, err := svc.FillChapter(ctx, chapterID, overwrite)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "chapter %q has %d bytes of content\n", ch.Title, len(ch.Content))
	return nil
}

func (cli *commandLine) generateQuiz(ctx context.Context, chapterID string) error {
	svc, err := cli.contentSvc(ctx)
	if err != nil {
		return errors.Wrap(err, "setting up content generation")
	}
	questions, err := svc.FillQuiz(ctx, chapterID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "added %d questions\n", len(questions))
	return nil
}
