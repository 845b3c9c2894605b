package mongostore

import (
	"context"
	"time"

	"github.com/francozeta/musicbox/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type reviewRepository struct{ s *Store }

func (r *reviewRepository) Create(ctx context.Context, review *models.Review) error {
	defer r.s.metrics.TrackQuery("reviews.create")()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	_, err := r.s.reviews().InsertOne(r.s.bind(ctx), reviewDocFrom(review))
	return err
}

func (r *reviewRepository) GetByID(ctx context.Context, id string) (*models.Review, error) {
	defer r.s.metrics.TrackQuery("reviews.get")()
	var doc reviewDoc
	if err := r.s.reviews().FindOne(r.s.bind(ctx), bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "Review", id)
	}
	return doc.toModel(), nil
}

func (r *reviewRepository) GetThread(ctx context.Context, id string) (*models.Review, error) {
	defer r.s.metrics.TrackQuery("reviews.thread")()
	ctx = r.s.bind(ctx)
	var doc reviewDoc
	if err := r.s.reviews().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "Review", id)
	}
	review := doc.toModel()
	if err := r.s.populate(ctx, []*models.Review{review}, 2, true); err != nil {
		return nil, err
	}
	return review, nil
}

func (r *reviewRepository) ListTopLevel(ctx context.Context, limit, offset int) ([]*models.Review, int64, error) {
	defer r.s.metrics.TrackQuery("reviews.list_top_level")()
	return r.s.feed(r.s.bind(ctx), bson.M{"parent_id": nil}, limit, offset)
}

func (r *reviewRepository) ListChildren(ctx context.Context, parentIDs []string) ([]*models.Review, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	defer r.s.metrics.TrackQuery("reviews.list_children")()
	docs, err := findAll[reviewDoc](r.s.bind(ctx), r.s.reviews(),
		bson.M{"parent_id": bson.M{"$in": parentIDs}},
		options.Find().SetProjection(bson.M{"_id": 1, "author_id": 1, "parent_id": 1, "community_id": 1}))
	if err != nil {
		return nil, err
	}
	return toReviews(docs), nil
}

func (r *reviewRepository) ListByAuthor(ctx context.Context, authorID string) ([]*models.Review, error) {
	defer r.s.metrics.TrackQuery("reviews.list_by_author")()
	docs, err := findAll[reviewDoc](r.s.bind(ctx), r.s.reviews(),
		bson.M{"author_id": authorID},
		options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	return toReviews(docs), nil
}

func (r *reviewRepository) ListByParents(ctx context.Context, parentIDs []string, excludeAuthorID string) ([]*models.Review, error) {
	if len(parentIDs) == 0 {
		return []*models.Review{}, nil
	}
	defer r.s.metrics.TrackQuery("reviews.list_by_parents")()
	ctx = r.s.bind(ctx)
	filter := bson.M{"parent_id": bson.M{"$in": parentIDs}}
	if excludeAuthorID != "" {
		filter["author_id"] = bson.M{"$ne": excludeAuthorID}
	}
	docs, err := findAll[reviewDoc](ctx, r.s.reviews(), filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	replies := toReviews(docs)
	if err := r.s.populate(ctx, replies, 0, false); err != nil {
		return nil, err
	}
	return replies, nil
}

func (r *reviewRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	defer r.s.metrics.TrackQuery("reviews.delete")()
	res, err := r.s.reviews().DeleteMany(r.s.bind(ctx), bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// feed pages through reviews matching filter, newest first, populated for a feed card.
func (s *Store) feed(ctx context.Context, filter bson.M, limit, offset int) ([]*models.Review, int64, error) {
	total, err := s.reviews().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	docs, err := findAll[reviewDoc](ctx, s.reviews(), filter, options.Find().
		SetSort(newestFirst).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}
	reviews := toReviews(docs)
	if err := s.populate(ctx, reviews, 1, true); err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func toReviews(docs []reviewDoc) []*models.Review {
	out := make([]*models.Review, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toModel())
	}
	return out
}
