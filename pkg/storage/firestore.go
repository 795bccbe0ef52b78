package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/raterudder/solarconsumer/pkg/log"
	"github.com/raterudder/solarconsumer/pkg/types"
)

const runsCollection = "runs"

// FirestoreProvider implements Database using Google Cloud Firestore.
// Each run is one document in the "runs" collection holding the run as a
// JSON blob plus the fields needed for querying.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project ID is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) runDoc(id string) (*firestore.DocumentRef, error) {
	if id == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}
	return f.client.Collection(runsCollection).Doc(id), nil
}

func runFields(run types.Run) (map[string]interface{}, error) {
	jsonBytes, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}
	return map[string]interface{}{
		"json":    string(jsonBytes),
		"created": run.Created,
		"status":  string(run.Status),
	}, nil
}

func decodeRun(ctx context.Context, doc *firestore.DocumentSnapshot) (types.Run, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "run doc missing json", slog.String("runID", doc.Ref.ID), slog.Any("err", err))
		return types.Run{}, fmt.Errorf("run document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "run doc json not string", slog.String("runID", doc.Ref.ID))
		return types.Run{}, fmt.Errorf("run document %s 'json' field is not string", doc.Ref.ID)
	}
	var run types.Run
	if err := json.Unmarshal([]byte(jsonStr), &run); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal run", slog.String("runID", doc.Ref.ID), slog.Any("err", err))
		return types.Run{}, fmt.Errorf("failed to unmarshal run (id=%s): %w", doc.Ref.ID, err)
	}
	return run, nil
}

// CreateRun stores a new run document. It fails if the ID is taken.
func (f *FirestoreProvider) CreateRun(ctx context.Context, run types.Run) error {
	if err := validateNewRun(run); err != nil {
		return err
	}
	ref, err := f.runDoc(run.ID)
	if err != nil {
		return err
	}
	fields, err := runFields(run)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fields); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// update applies fn to the stored run inside a transaction.
func (f *FirestoreProvider) update(ctx context.Context, id string, fn func(*types.Run) error) error {
	ref, err := f.runDoc(id)
	if err != nil {
		return err
	}
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("%w: %s", ErrRunNotFound, id)
			}
			return fmt.Errorf("failed to get run %s: %w", id, err)
		}
		run, err := decodeRun(ctx, doc)
		if err != nil {
			return err
		}
		if err := fn(&run); err != nil {
			return err
		}
		fields, err := runFields(run)
		if err != nil {
			return err
		}
		return tx.Set(ref, fields)
	})
}

func (f *FirestoreProvider) CompleteRun(ctx context.Context, id string, c Completion) error {
	return f.update(ctx, id, c.apply)
}

func (f *FirestoreProvider) FailRun(ctx context.Context, id string, fl Failure) error {
	return f.update(ctx, id, fl.apply)
}

// GetRun retrieves a run by ID.
func (f *FirestoreProvider) GetRun(ctx context.Context, id string) (types.Run, error) {
	ref, err := f.runDoc(id)
	if err != nil {
		return types.Run{}, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return types.Run{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return decodeRun(ctx, doc)
}

// ListRuns returns the newest runs first. Malformed documents are skipped.
func (f *FirestoreProvider) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	iter := f.client.Collection(runsCollection).
		OrderBy("created", firestore.Desc).
		Limit(listLimit(limit)).
		Documents(ctx)
	defer iter.Stop()

	var runs []types.Run
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating runs: %w", err)
		}
		run, err := decodeRun(ctx, doc)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}
