package mongostore

import (
	"context"
	"time"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userRepository struct{ s *Store }

func (r *userRepository) get(ctx context.Context, id string) (*userDoc, error) {
	var doc userDoc
	if err := r.s.users().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "User", id)
	}
	return &doc, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.s.metrics.TrackQuery("users.get")()
	ctx = r.s.bind(ctx)
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	user := doc.toModel()

	communities, err := findAll[communityDoc](ctx, r.s.communities(), bson.M{"_id": bson.M{"$in": nonNil(doc.Communities)}})
	if err != nil {
		return nil, err
	}
	for i := range communities {
		user.Communities = append(user.Communities, *communities[i].toModel())
	}
	return user, nil
}

func (r *userRepository) GetWithReviews(ctx context.Context, id string) (*models.User, error) {
	defer r.s.metrics.TrackQuery("users.get_with_reviews")()
	ctx = r.s.bind(ctx)
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	user := doc.toModel()

	docs, err := findAll[reviewDoc](ctx, r.s.reviews(),
		bson.M{"_id": bson.M{"$in": nonNil(doc.Reviews)}},
		options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	reviews := toReviews(docs)
	if err := r.s.populate(ctx, reviews, 1, true); err != nil {
		return nil, err
	}
	for _, rv := range reviews {
		user.Reviews = append(user.Reviews, *rv)
	}
	return user, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	defer r.s.metrics.TrackQuery("users.upsert")()
	now := time.Now().UTC()
	created := user.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := r.s.users().UpdateOne(r.s.bind(ctx),
		bson.M{"_id": user.ID},
		bson.M{
			"$set": bson.M{
				"username":   user.Username,
				"name":       user.Name,
				"bio":        user.Bio,
				"image":      user.Image,
				"onboarded":  user.Onboarded,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"reviews":     []string{},
				"communities": []string{},
				"created_at":  created,
			},
		},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return models.NewConflictError("Username is already taken")
	}
	return err
}

func (r *userRepository) Search(ctx context.Context, q repository.UserQuery) ([]*models.User, int64, error) {
	defer r.s.metrics.TrackQuery("users.search")()
	ctx = r.s.bind(ctx)
	filter := bson.M{}
	if q.ExcludeID != "" {
		filter["_id"] = bson.M{"$ne": q.ExcludeID}
	}
	if q.Search != "" {
		filter["$or"] = bson.A{
			bson.M{"username": containsFold(q.Search)},
			bson.M{"name": containsFold(q.Search)},
		}
	}

	total, err := r.s.users().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	sort := oldestFirst
	if q.SortDesc {
		sort = newestFirst
	}
	docs, err := findAll[userDoc](ctx, r.s.users(), filter, options.Find().
		SetSort(sort).
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Limit)))
	if err != nil {
		return nil, 0, err
	}
	users := make([]*models.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toModel())
	}
	return users, total, nil
}

func (r *userRepository) AppendReview(ctx context.Context, userID, reviewID string) error {
	defer r.s.metrics.TrackQuery("users.append_review")()
	_, err := r.s.users().UpdateOne(r.s.bind(ctx),
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"reviews": reviewID}})
	return err
}

func (r *userRepository) PullReviews(ctx context.Context, userIDs, reviewIDs []string) error {
	if len(userIDs) == 0 || len(reviewIDs) == 0 {
		return nil
	}
	defer r.s.metrics.TrackQuery("users.pull_reviews")()
	_, err := r.s.users().UpdateMany(r.s.bind(ctx),
		bson.M{"_id": bson.M{"$in": userIDs}},
		bson.M{"$pull": bson.M{"reviews": bson.M{"$in": reviewIDs}}})
	return err
}

func (r *userRepository) Exists(ctx context.Context, id string) (bool, error) {
	defer r.s.metrics.TrackQuery("users.exists")()
	n, err := r.s.users().CountDocuments(r.s.bind(ctx), bson.M{"_id": id}, options.Count().SetLimit(1))
	return n > 0, err
}

// nonNil keeps $in filters valid when an id array was never initialised.
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
