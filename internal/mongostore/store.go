package mongostore

import (
	"context"
	"errors"
	"regexp"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"
	"github.com/francozeta/musicbox/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements repository.Store over three collections. Membership and
// ownership lists live as id arrays on the user and community documents.
type Store struct {
	db           *mongo.Database
	transactions bool
	sess         mongo.Session
	metrics      *observability.StoreMetrics
}

var _ repository.Store = (*Store)(nil)

// NewStore returns a Store. With transactions off, Transaction runs its steps
// sequentially; standalone mongod has no multi-document transactions.
func NewStore(db *mongo.Database, transactions bool) *Store {
	return &Store{db: db, transactions: transactions, metrics: observability.NewStoreMetrics("mongo")}
}

func (s *Store) Reviews() repository.ReviewRepository        { return &reviewRepository{s} }
func (s *Store) Users() repository.UserRepository            { return &userRepository{s} }
func (s *Store) Communities() repository.CommunityRepository { return &communityRepository{s} }

func (s *Store) Transaction(ctx context.Context, fn func(repository.Store) error) error {
	defer s.metrics.TrackQuery("transaction")()
	if !s.transactions || s.sess != nil {
		return fn(s)
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(mongo.SessionContext) (interface{}, error) {
		return nil, fn(&Store{db: s.db, transactions: true, sess: sess, metrics: s.metrics})
	})
	return err
}

// bind attaches the open session, if any, so the call joins the transaction.
func (s *Store) bind(ctx context.Context) context.Context {
	if s.sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, s.sess)
}

func (s *Store) users() *mongo.Collection       { return s.db.Collection(usersCollection) }
func (s *Store) communities() *mongo.Collection { return s.db.Collection(communitiesCollection) }
func (s *Store) reviews() *mongo.Collection     { return s.db.Collection(reviewsCollection) }

func notFound(err error, resource, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NewNotFoundError(resource, id)
	}
	return err
}

// containsFold matches a literal, case-insensitive substring.
func containsFold(search string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(search), "$options": "i"}
}

// findAll runs a query and decodes every document into T.
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	newestFirst = bson.D{{Key: "created_at", Value: -1}}
	oldestFirst = bson.D{{Key: "created_at", Value: 1}}
)

// loadUserCards returns the users in ids keyed by id.
func (s *Store) loadUserCards(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	docs, err := findAll[userDoc](ctx, s.users(), bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for i := range docs {
		out[docs[i].ID] = docs[i].card()
	}
	return out, nil
}

func (s *Store) loadCommunityCards(ctx context.Context, ids []string) (map[string]*models.Community, error) {
	out := make(map[string]*models.Community, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	docs, err := findAll[communityDoc](ctx, s.communities(), bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for i := range docs {
		out[docs[i].ID] = docs[i].card()
	}
	return out, nil
}

// reviewTier is one level of replies and the reviews they answer.
type reviewTier struct {
	parents  map[string]*models.Review
	children []*models.Review
}

// populate fills author, community and depth levels of children (with their
// authors) on reviews, the document-store equivalent of GORM preloads.
func (s *Store) populate(ctx context.Context, reviews []*models.Review, depth int, withCommunity bool) error {
	if len(reviews) == 0 {
		return nil
	}

	var tiers []reviewTier
	all := append([]*models.Review(nil), reviews...)
	level := reviews
	for d := 0; d < depth && len(level) > 0; d++ {
		parentIDs := make([]string, 0, len(level))
		byID := make(map[string]*models.Review, len(level))
		for _, r := range level {
			parentIDs = append(parentIDs, r.ID)
			byID[r.ID] = r
		}
		docs, err := findAll[reviewDoc](ctx, s.reviews(),
			bson.M{"parent_id": bson.M{"$in": parentIDs}},
			options.Find().SetSort(oldestFirst))
		if err != nil {
			return err
		}
		next := make([]*models.Review, 0, len(docs))
		for i := range docs {
			next = append(next, docs[i].toModel())
		}
		all = append(all, next...)
		tiers = append(tiers, reviewTier{parents: byID, children: next})
		level = next
	}

	authorIDs := make([]string, 0, len(all))
	var communityIDs []string
	for _, r := range all {
		authorIDs = append(authorIDs, r.AuthorID)
		if withCommunity && r.CommunityID != nil {
			communityIDs = append(communityIDs, *r.CommunityID)
		}
	}
	authors, err := s.loadUserCards(ctx, authorIDs)
	if err != nil {
		return err
	}
	communities, err := s.loadCommunityCards(ctx, communityIDs)
	if err != nil {
		return err
	}
	assemble(all, tiers, authors, communities)
	return nil
}

// assemble sets the loaded cards on every review, then nests the tiers.
func assemble(all []*models.Review, tiers []reviewTier, authors map[string]*models.User, communities map[string]*models.Community) {
	for _, r := range all {
		r.Author = authors[r.AuthorID]
		if r.CommunityID != nil {
			r.Community = communities[*r.CommunityID]
		}
	}
	// Children are copied by value, so attach the deepest tier first.
	for i := len(tiers) - 1; i >= 0; i-- {
		attachChildren(tiers[i].parents, tiers[i].children)
	}
}

// attachChildren copies children into their parents' Children slices.
func attachChildren(parents map[string]*models.Review, children []*models.Review) {
	for _, c := range children {
		if p, ok := parents[*c.ParentID]; ok {
			p.Children = append(p.Children, *c)
		}
	}
}
