package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"genesis/internal/domain"
)

const projectsCollection = "projects"

// JobRepositoryMongo stores jobs as documents keyed by project_id.
type JobRepositoryMongo struct {
	collection *mongo.Collection
	logger     zerolog.Logger
	now        func() time.Time
}

// NewJobRepositoryMongo returns a store on the projects collection. Index
// creation failures are logged and do not prevent startup.
func NewJobRepositoryMongo(ctx context.Context, db *mongo.Database, logger zerolog.Logger) *JobRepositoryMongo {
	collection := db.Collection(projectsCollection)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "project_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Warn().Err(err).Str("collection", projectsCollection).Msg("failed to create indexes")
	}

	return &JobRepositoryMongo{
		collection: collection,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *JobRepositoryMongo) Create(ctx context.Context, job *domain.Job) error {
	doc := job.Clone()
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: project %s already exists", domain.ErrConflict, job.ID)
		}
		r.logger.Error().Err(err).Str("project_id", job.ID).Msg("failed to create project")
		return storeError("insert project", err)
	}
	return nil
}

func (r *JobRepositoryMongo) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	err := r.collection.FindOne(ctx, bson.M{"project_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error().Err(err).Str("project_id", id).Msg("failed to find project")
		return nil, storeError("find project", err)
	}
	return normalizeDecoded(&job), nil
}

// Update sets only the present fields and bumps the version in one
// FindOneAndUpdate so concurrent writers never interleave.
func (r *JobRepositoryMongo) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.Job, error) {
	set := bson.M{"updated_at": r.now()}
	if update.Status != nil {
		set["status"] = *update.Status
	}
	if update.Files != nil {
		set["files"] = domain.CloneFiles(update.Files)
	}
	if update.Output != nil {
		set["output"] = *update.Output
	}
	if update.Error != nil {
		set["error"] = *update.Error
	}
	if update.Metadata != nil {
		set["metadata"] = update.Metadata
	}

	filter := bson.M{"project_id": id}
	guard, guarded := update.Guard()
	if guarded {
		filter["status"] = bson.M{"$in": guard}
	}

	result := r.collection.FindOneAndUpdate(
		ctx,
		filter,
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err := result.Err(); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Error().Err(err).Str("project_id", id).Msg("failed to update project")
			return nil, storeError("update project", err)
		}
		if !guarded {
			return nil, domain.ErrNotFound
		}
		count, err := r.collection.CountDocuments(ctx, bson.M{"project_id": id})
		if err != nil {
			return nil, storeError("check project", err)
		}
		if count == 0 {
			return nil, domain.ErrNotFound
		}
		if update.Status != nil {
			return nil, fmt.Errorf("%w: project %s cannot move to %s", domain.ErrConflict, id, *update.Status)
		}
		return nil, fmt.Errorf("%w: project %s is not %s", domain.ErrConflict, id, *update.ExpectStatus)
	}

	var updated domain.Job
	if err := result.Decode(&updated); err != nil {
		return nil, storeError("decode project", err)
	}
	return normalizeDecoded(&updated), nil
}

func (r *JobRepositoryMongo) List(ctx context.Context, filter domain.ListFilter) ([]domain.Job, error) {
	filter = filter.Normalize()

	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.Backend != nil {
		query["backend"] = *filter.Backend
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Skip)).
		SetLimit(int64(filter.Limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list projects")
		return nil, storeError("list projects", err)
	}
	defer cursor.Close(ctx)

	jobs := []domain.Job{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, storeError("decode projects", err)
	}
	for i := range jobs {
		normalizeDecoded(&jobs[i])
	}
	return jobs, nil
}

func (r *JobRepositoryMongo) Stats(ctx context.Context) (map[domain.Status]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeError("project stats", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, storeError("decode stats", err)
	}

	out := emptyStats()
	for _, g := range groups {
		out[domain.Status(g.Status)] = g.Count
	}
	return out, nil
}

func (r *JobRepositoryMongo) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, readpref.Primary())
}

func normalizeDecoded(job *domain.Job) *domain.Job {
	if job.Files == nil {
		job.Files = []domain.GeneratedFile{}
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job
}

var _ domain.JobRepository = (*JobRepositoryMongo)(nil)
