// Package mongo is a Store backed by a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finease/internal/core"
	"finease/internal/query"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultDatabase   = "fin_db"
	DefaultCollection = "transactions"
)

type transactionDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Owner       string             `bson:"email"`
	Type        string             `bson:"type"`
	Category    string             `bson:"category"`
	AmountCents int64              `bson:"amountCents"`
	Date        time.Time          `bson:"date"`
	Description string             `bson:"description,omitempty"`
	Name        string             `bson:"name,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d transactionDoc) transaction() core.Transaction {
	return core.Transaction{
		ID:          d.ID.Hex(),
		Owner:       d.Owner,
		Type:        core.TransactionType(d.Type),
		Category:    d.Category,
		Amount:      core.Money{Cents: d.AmountCents},
		Date:        d.Date.UTC(),
		Description: d.Description,
		Name:        d.Name,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

var sortFields = map[query.SortField]string{
	query.SortByCreatedAt: "createdAt",
	query.SortByDate:      "date",
	query.SortByAmount:    "amountCents",
}

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Open connects to uri and returns a store over database/collection. Empty
// names fall back to the defaults.
func Open(ctx context.Context, uri, database, collection string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{client: client, coll: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return core.StoreError("ping", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, tx core.Transaction) (string, error) {
	doc := transactionDoc{
		ID:          primitive.NewObjectID(),
		Owner:       tx.Owner,
		Type:        string(tx.Type),
		Category:    tx.Category,
		AmountCents: tx.Amount.Cents,
		Date:        tx.Date.UTC(),
		Description: tx.Description,
		Name:        tx.Name,
		CreatedAt:   tx.CreatedAt.UTC(),
		UpdatedAt:   tx.UpdatedAt.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", core.StoreError("insert transaction", err)
	}
	return doc.ID.Hex(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (core.Transaction, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Transaction{}, core.ErrNotFound
	}

	var doc transactionDoc
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.StoreError("find transaction", err)
	}
	return doc.transaction(), nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, nil
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return 0, core.StoreError("delete transaction", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, scope core.Scope, patch core.TransactionPatch, updatedAt time.Time) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, nil
	}

	set := bson.M{"updatedAt": updatedAt.UTC()}
	if patch.Type != nil {
		set["type"] = string(*patch.Type)
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Amount != nil {
		set["amountCents"] = patch.Amount.Cents
	}
	if patch.Date != nil {
		set["date"] = patch.Date.UTC()
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}

	filter := scopeFilter(scope)
	filter["_id"] = oid
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, core.StoreError("update transaction", err)
	}
	return res.MatchedCount, nil
}

func (s *Store) Find(ctx context.Context, spec query.Spec) ([]core.Transaction, error) {
	order := int(spec.Order)
	opts := options.Find().SetSort(bson.D{
		{Key: sortFields[spec.Field], Value: order},
		{Key: "_id", Value: order},
	})
	return s.find(ctx, "find transactions", scopeFilter(spec.Scope), opts)
}

func (s *Store) All(ctx context.Context) ([]core.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, "list transactions", bson.M{}, opts)
}

func (s *Store) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]core.Transaction, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, core.StoreError(op, err)
	}
	defer cur.Close(ctx)

	out := []core.Transaction{}
	for cur.Next(ctx) {
		var doc transactionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, core.StoreError(op, err)
		}
		out = append(out, doc.transaction())
	}
	if err := cur.Err(); err != nil {
		return nil, core.StoreError(op, err)
	}
	return out, nil
}

func (s *Store) SumAmount(ctx context.Context, scope core.Scope, category string) (core.Money, error) {
	match := scopeFilter(scope)
	match["category"] = category
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amountCents"}}}},
	}

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := s.aggregate(ctx, pipeline, &rows); err != nil {
		return core.Money{}, core.StoreError("sum amount", err)
	}
	if len(rows) == 0 {
		return core.Money{}, nil
	}
	return core.Money{Cents: rows[0].Total}, nil
}

func (s *Store) SumByType(ctx context.Context, scope core.Scope) (core.TypeTotals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: scopeFilter(scope)}},
		{{Key: "$group", Value: bson.M{"_id": "$type", "total": bson.M{"$sum": "$amountCents"}}}},
	}

	var rows []struct {
		Type  string `bson:"_id"`
		Total int64  `bson:"total"`
	}
	if err := s.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, core.StoreError("sum by type", err)
	}

	totals := core.TypeTotals{}
	for _, r := range rows {
		totals[core.TransactionType(r.Type)] = core.Money{Cents: r.Total}
	}
	return totals, nil
}

func (s *Store) SumByCategory(ctx context.Context, scope core.Scope) ([]core.CategoryTotal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: scopeFilter(scope)}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "total": bson.M{"$sum": "$amountCents"}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	var rows []struct {
		Category string `bson:"_id"`
		Total    int64  `bson:"total"`
	}
	if err := s.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, core.StoreError("sum by category", err)
	}

	out := make([]core.CategoryTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.CategoryTotal{Category: r.Category, Total: core.Money{Cents: r.Total}})
	}
	return out, nil
}

func (s *Store) SumByMonthAndType(ctx context.Context, scope core.Scope) ([]core.MonthTypeTotal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: scopeFilter(scope)}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"month": bson.M{"$dateToString": bson.M{"format": "%Y-%m", "date": "$date"}},
				"type":  "$type",
			},
			"total": bson.M{"$sum": "$amountCents"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.month", Value: 1}, {Key: "_id.type", Value: 1}}}},
	}

	var rows []struct {
		Key struct {
			Month string `bson:"month"`
			Type  string `bson:"type"`
		} `bson:"_id"`
		Total int64 `bson:"total"`
	}
	if err := s.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, core.StoreError("sum by month", err)
	}

	out := make([]core.MonthTypeTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.MonthTypeTotal{
			Month: r.Key.Month,
			Type:  core.TransactionType(r.Key.Type),
			Total: core.Money{Cents: r.Total},
		})
	}
	return out, nil
}

func (s *Store) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func scopeFilter(scope core.Scope) bson.M {
	if scope.Scoped() {
		return bson.M{"email": scope.Owner}
	}
	return bson.M{}
}
