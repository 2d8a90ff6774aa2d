package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type digestSender interface {
	SendWeeklyDigest(ctx context.Context) (*models.DigestResult, error)
}

type catalogImporter interface {
	ImportInitialData(ctx context.Context, data dto.CatalogImport) (map[string]service.ImportResult, error)
	ImportBriefingTopics(ctx context.Context, data dto.BriefingTopicImport) (service.ImportResult, error)
}

type adminCreator interface {
	CreateAdmin(ctx context.Context, username, email, password string) (*models.User, error)
}

type commandLine struct {
	digest   digestSender
	catalog  catalogImporter
	admins   adminCreator
	migrate  func(ctx context.Context) error
	out      io.Writer
	readFile func(name string) ([]byte, error)
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate                               - apply database migrations")
	fmt.Fprintln(cli.out, "  send-weekly-digest                    - email instructors their pending sign-offs")
	fmt.Fprintln(cli.out, "  import-initial-data FILE.json         - upsert gliders, training topics and exercises")
	fmt.Fprintln(cli.out, "  import-ground-briefings FILE.json     - upsert ground briefing topics by number")
	fmt.Fprintln(cli.out, "  create-admin USERNAME EMAIL           - create an admin, the password is prompted next")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if err := cli.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "migrations applied")
		return nil
	case "send-weekly-digest":
		return cli.sendWeeklyDigest(ctx)
	case "import-initial-data":
		if len(args) != 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.importInitialData(ctx, args[2])
	case "import-ground-briefings":
		if len(args) != 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.importGroundBriefings(ctx, args[2])
	case "create-admin":
		if len(args) != 4 {
			cli.printUsage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cli.printUsage()
			return errHelp
		}
		return cli.createAdmin(ctx, args[2], args[3], string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) sendWeeklyDigest(ctx context.Context) error {
	result, err := cli.digest.SendWeeklyDigest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Weekly digest: %d sent, %d skipped, %d failed (%d instructors)\n",
		result.SentCount, result.SkippedCount, result.ErrorCount, result.TotalInstructors)
	if result.ErrorCount > 0 {
		return fmt.Errorf("%d digest emails failed", result.ErrorCount)
	}
	return nil
}

func (cli *commandLine) importInitialData(ctx context.Context, path string) error {
	var data dto.CatalogImport
	if err := cli.decodeFile(path, &data); err != nil {
		return err
	}
	results, err := cli.catalog.ImportInitialData(ctx, data)
	if err != nil {
		return err
	}
	tables := make([]string, 0, len(results))
	for table := range results {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Fprintf(cli.out, "%s: %d created, %d updated\n", table, results[table].Created, results[table].Updated)
	}
	return nil
}

func (cli *commandLine) importGroundBriefings(ctx context.Context, path string) error {
	var data dto.BriefingTopicImport
	if err := cli.decodeFile(path, &data); err != nil {
		return err
	}
	result, err := cli.catalog.ImportBriefingTopics(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %d created, %d updated\n", models.TableGroundBriefingTopics, result.Created, result.Updated)
	return nil
}

func (cli *commandLine) createAdmin(ctx context.Context, username, email, password string) error {
	user, err := cli.admins.CreateAdmin(ctx, strings.TrimSpace(username), strings.TrimSpace(email), password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "admin %s created (%s)\n", user.Username, user.ID)
	return nil
}

func (cli *commandLine) decodeFile(path string, dest interface{}) error {
	readFile := cli.readFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	raw, err := readFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
