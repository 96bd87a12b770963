// Command storage-init provisions the table storage the API expects. It is
// idempotent and meant to run once per environment before the first deploy.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	tables := []string{
		envString("BOARDS_TABLE", "boards"),
		envString("MEMBERS_TABLE", "boardmembers"),
		envString("LISTS_TABLE", "lists"),
		envString("TASKS_TABLE", "tasks"),
		envString("ACTIVITIES_TABLE", "activities"),
	}
	if err := createTables(context.Background(), connStr, tables); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	log.Info("storage init complete")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		c := svc.NewClient(name)
		if _, err := c.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
				log.Debugf("table %s already exists", name)
				continue
			}
			return err
		}
		log.Infof("created table %s", name)
	}
	return nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
