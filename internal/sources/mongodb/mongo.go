// Package mongodb serves data files from MongoDB. Each file lives in its own
// collection named "transactions_<file>".
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"findash/internal/core"
	"findash/internal/log"
	ports "findash/internal/sources"
)

const (
	CollectionPrefix = "transactions_"
	DefaultDatabase  = "findash"
)

// Document is the stored form of a transaction.
type Document struct {
	ID          string    `bson:"_id"`
	Date        time.Time `bson:"date"`
	Description string    `bson:"description"`
	Amount      int64     `bson:"amount"`
	Category    string    `bson:"category"`
	Source      string    `bson:"source"`
	Currency    string    `bson:"currency"`
}

func toDocument(t core.Transaction) Document {
	return Document{
		ID:          t.ID,
		Date:        t.Date.UTC(),
		Description: t.Description,
		Amount:      t.Amount,
		Category:    t.Category,
		Source:      t.Source,
		Currency:    t.Currency,
	}
}

func (d Document) toTransaction() core.Transaction {
	y, m, day := d.Date.UTC().Date()
	return core.Transaction{
		ID:          d.ID,
		Date:        core.NewDate(y, int(m), day),
		Description: d.Description,
		Amount:      d.Amount,
		Category:    d.Category,
		Source:      d.Source,
		Currency:    d.Currency,
	}
}

// CollectionName maps a file name to its collection.
func CollectionName(file string) string {
	return CollectionPrefix + file
}

// Source reads and writes data files in one database.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
	logger *log.Logger
}

var (
	_ ports.Source   = (*Source)(nil)
	_ ports.Importer = (*Source)(nil)
)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string, logger *log.Logger) (*Source, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSources)
	if database == "" {
		database = DefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	logger.InfoContext(ctx, "Connected to MongoDB", "database", database)
	return &Source{client: client, db: client.Database(database), logger: logger}, nil
}

func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Source) ListFiles(ctx context.Context) ([]core.FileInfo, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": bson.M{"$regex": "^" + CollectionPrefix}})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	files := make([]core.FileInfo, 0, len(names))
	for _, name := range names {
		n, err := s.db.Collection(name).CountDocuments(ctx, bson.M{})
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping uncountable collection", "collection", name, log.FieldError, err.Error())
			continue
		}
		files = append(files, core.FileInfo{
			Name:              strings.TrimPrefix(name, CollectionPrefix),
			TransactionsCount: int(n),
		})
	}
	ports.SortBySize(files)
	return files, nil
}

func (s *Source) FetchTransactions(ctx context.Context, filename string) ([]core.Transaction, error) {
	name := CollectionName(filename)
	existing, err := s.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return nil, fmt.Errorf("lookup collection %s: %w", name, err)
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrFileNotFound, filename)
	}

	cur, err := s.db.Collection(name).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", name, err)
	}
	defer cur.Close(ctx)

	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	out := make([]core.Transaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toTransaction())
	}
	return out, nil
}

// ImportFile upserts txs by id and removes documents no longer present.
func (s *Source) ImportFile(ctx context.Context, filename string, txs []core.Transaction) error {
	coll := s.db.Collection(CollectionName(filename))
	if len(txs) == 0 {
		_, err := coll.DeleteMany(ctx, bson.M{})
		return err
	}

	models := make([]mongo.WriteModel, 0, len(txs))
	ids := make([]string, 0, len(txs))
	for _, t := range txs {
		doc := toDocument(t)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
		ids = append(ids, doc.ID)
	}
	if _, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to perform bulk write for collection %s: %w", coll.Name(), err)
	}
	if _, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$nin": ids}}); err != nil {
		return fmt.Errorf("prune %s: %w", coll.Name(), err)
	}
	return nil
}

// IsNotFound reports whether err means the file does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ports.ErrFileNotFound) || errors.Is(err, mongo.ErrNoDocuments)
}
