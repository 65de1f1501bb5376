// Command shortenerctl performs operator tasks against a shortener
// deployment: issuing API tokens and removing an owner with all their links.
//
// Usage:
//
//	shortenerctl issue-token -user <id> [-admin]
//	shortenerctl delete-owner -owner <id> [-d dsn | -f sqlite-file]
//
// Secrets and database locations default to the server's configuration
// (CONFIG file, then JWT_SECRET, DATABASE_DSN, FILE_STORAGE_PATH, REDIS_ADDR).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/cache"
	"github.com/atinyakov/shortlinks/internal/config"
	"github.com/atinyakov/shortlinks/internal/logger"
	"github.com/atinyakov/shortlinks/internal/repository"
)

var errUsage = errors.New("usage: shortenerctl <issue-token|delete-owner> [flags]")

func main() {
	log := logger.New()
	if err := log.Init("info"); err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Getenv, log.Log); err != nil {
		log.Log.Fatal("command failed", zap.Error(err))
	}
}

func run(ctx context.Context, args []string, out io.Writer, getenv func(string) string, log *zap.Logger) error {
	if len(args) == 0 {
		return errUsage
	}

	defaults, err := config.ParseArgs(nil, getenv)
	if err != nil {
		return err
	}

	switch args[0] {
	case "issue-token":
		return issueToken(args[1:], out, defaults)
	case "delete-owner":
		return deleteOwner(ctx, args[1:], out, defaults, log)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func issueToken(args []string, out io.Writer, defaults *config.Options) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "user id the token belongs to")
	admin := fs.Bool("admin", false, "grant the admin designation")
	secret := fs.String("k", defaults.JWTSecret, "jwt signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*user) == "" {
		return errors.New("issue-token: -user is required")
	}
	if strings.TrimSpace(*secret) == "" {
		return fmt.Errorf("issue-token: %w", config.ErrNoJWTSecret)
	}

	token, err := service.NewAuth(*secret).BuildToken(*user, *admin)
	if err != nil {
		return fmt.Errorf("issue-token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func deleteOwner(ctx context.Context, args []string, out io.Writer, defaults *config.Options, log *zap.Logger) error {
	fs := flag.NewFlagSet("delete-owner", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	owner := fs.String("owner", "", "owner whose links are removed")
	dsn := fs.String("d", defaults.DatabaseDSN, "postgres dsn")
	path := fs.String("f", defaults.FilePath, "sqlite database file")
	redisAddr := fs.String("r", defaults.RedisAddr, "redis address of the lookup cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*owner) == "" {
		return errors.New("delete-owner: -owner is required")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	repo, err := repository.Open(ctx, *dsn, *path, log)
	if err != nil {
		return fmt.Errorf("delete-owner: %w", err)
	}

	var store service.Storage = repo
	if *redisAddr != "" {
		c, err := cache.NewRedisCache(ctx, *redisAddr, defaults.RedisPassword, defaults.RedisCacheTTL, log)
		if err != nil {
			repo.Close()
			return fmt.Errorf("delete-owner: %w", err)
		}
		store = cache.NewCachedStorage(repo, c, log)
	}
	defer store.Close()

	deleted, err := store.DeleteOwner(ctx, *owner)
	if err != nil {
		return fmt.Errorf("delete-owner: %w", err)
	}

	_, err = fmt.Fprintf(out, "deleted %d mappings of owner %s\n", deleted, *owner)
	return err
}
