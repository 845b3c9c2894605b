package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type communityRepository struct{ s *Store }

func (r *communityRepository) Create(ctx context.Context, community *models.Community) error {
	defer r.s.metrics.TrackQuery("communities.create")()
	if community.CreatedAt.IsZero() {
		community.CreatedAt = time.Now().UTC()
	}
	_, err := r.s.communities().InsertOne(r.s.bind(ctx), communityDocFrom(community))
	if mongo.IsDuplicateKeyError(err) {
		return models.NewConflictError("Community already exists")
	}
	return err
}

func (r *communityRepository) get(ctx context.Context, id string) (*communityDoc, error) {
	var doc communityDoc
	if err := r.s.communities().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "Community", id)
	}
	return &doc, nil
}

func (r *communityRepository) GetByID(ctx context.Context, id string) (*models.Community, error) {
	defer r.s.metrics.TrackQuery("communities.get")()
	ctx = r.s.bind(ctx)
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	community := doc.toModel()

	cards, err := r.s.loadUserCards(ctx, append([]string{doc.CreatedByID}, doc.Members...))
	if err != nil {
		return nil, err
	}
	community.CreatedBy = cards[doc.CreatedByID]
	for _, memberID := range doc.Members {
		if u, ok := cards[memberID]; ok {
			community.Members = append(community.Members, *u)
		}
	}
	return community, nil
}

func (r *communityRepository) Resolve(ctx context.Context, id string) (string, bool, error) {
	defer r.s.metrics.TrackQuery("communities.resolve")()
	var doc struct {
		ID string `bson:"_id"`
	}
	err := r.s.communities().FindOne(r.s.bind(ctx), bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.ID, true, nil
}

func (r *communityRepository) List(ctx context.Context, q repository.CommunityQuery) ([]*models.Community, int64, error) {
	defer r.s.metrics.TrackQuery("communities.list")()
	ctx = r.s.bind(ctx)
	filter := bson.M{}
	if q.Search != "" {
		filter["$or"] = bson.A{
			bson.M{"username": containsFold(q.Search)},
			bson.M{"name": containsFold(q.Search)},
		}
	}
	total, err := r.s.communities().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	docs, err := findAll[communityDoc](ctx, r.s.communities(), filter, options.Find().
		SetSort(newestFirst).
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Limit)))
	if err != nil {
		return nil, 0, err
	}
	out := make([]*models.Community, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toModel())
	}
	return out, total, nil
}

func (r *communityRepository) AppendReview(ctx context.Context, communityID, reviewID string) error {
	defer r.s.metrics.TrackQuery("communities.append_review")()
	_, err := r.s.communities().UpdateOne(r.s.bind(ctx),
		bson.M{"_id": communityID},
		bson.M{"$addToSet": bson.M{"reviews": reviewID}})
	return err
}

func (r *communityRepository) PullReviews(ctx context.Context, communityIDs, reviewIDs []string) error {
	if len(communityIDs) == 0 || len(reviewIDs) == 0 {
		return nil
	}
	defer r.s.metrics.TrackQuery("communities.pull_reviews")()
	_, err := r.s.communities().UpdateMany(r.s.bind(ctx),
		bson.M{"_id": bson.M{"$in": communityIDs}},
		bson.M{"$pull": bson.M{"reviews": bson.M{"$in": reviewIDs}}})
	return err
}

// AddMember records the membership on both documents.
func (r *communityRepository) AddMember(ctx context.Context, communityID, userID string) error {
	defer r.s.metrics.TrackQuery("communities.add_member")()
	ctx = r.s.bind(ctx)
	if _, err := r.s.communities().UpdateOne(ctx,
		bson.M{"_id": communityID},
		bson.M{"$addToSet": bson.M{"members": userID}}); err != nil {
		return err
	}
	_, err := r.s.users().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"communities": communityID}})
	return err
}

func (r *communityRepository) RemoveMember(ctx context.Context, communityID, userID string) error {
	defer r.s.metrics.TrackQuery("communities.remove_member")()
	ctx = r.s.bind(ctx)
	if _, err := r.s.communities().UpdateOne(ctx,
		bson.M{"_id": communityID},
		bson.M{"$pull": bson.M{"members": userID}}); err != nil {
		return err
	}
	_, err := r.s.users().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"communities": communityID}})
	return err
}

func (r *communityRepository) ListReviews(ctx context.Context, communityID string, limit, offset int) ([]*models.Review, int64, error) {
	defer r.s.metrics.TrackQuery("communities.list_reviews")()
	ctx = r.s.bind(ctx)
	doc, err := r.get(ctx, communityID)
	if err != nil {
		return nil, 0, err
	}
	return r.s.feed(ctx, bson.M{"_id": bson.M{"$in": nonNil(doc.Reviews)}, "parent_id": nil}, limit, offset)
}
