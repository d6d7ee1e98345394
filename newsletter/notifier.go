package newsletter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
)

// Notifier turns publishing events into newsletter messages.
type Notifier struct {
	db       *gorm.DB
	out      *Dispatcher
	siteURL  string
	siteName string
}

// NewNotifier binds a notifier to the database and an outgoing dispatcher.
func NewNotifier(db *gorm.DB, out *Dispatcher, siteURL, siteName string) *Notifier {
	return &Notifier{
		db:       db,
		out:      out,
		siteURL:  strings.TrimRight(siteURL, "/"),
		siteName: siteName,
	}
}

// PostCreated queues one email per subscriber of any of the post's categories.
// Delivery continues in the background, so a large audience does not hold up
// the request. It returns how many messages were handed over.
func (n *Notifier) PostCreated(post *models.Post) (int, error) {
	ids := make([]uint, 0, len(post.Categories))
	names := make([]string, 0, len(post.Categories))
	for _, c := range post.Categories {
		ids = append(ids, c.ID)
		names = append(names, c.Name)
	}

	users, err := models.SubscribersOf(n.db, ids)
	if err != nil {
		return 0, fmt.Errorf("load subscribers: %w", err)
	}

	msgs := make([]Message, 0, len(users))
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		body := fmt.Sprintf("Hello, %s!\n\nA new post in %s:\n\n%s\n%s\n\nRead it on %s: %s\n",
			u.Username, strings.Join(names, ", "), post.Title, post.Preview(),
			n.siteName, n.postURL(post.ID))
		msgs = append(msgs, Message{To: u.Email, Subject: post.Title, Body: body})
	}
	if err := n.out.Deliver(msgs); err != nil {
		return 0, fmt.Errorf("queue post %d notifications: %w", post.ID, err)
	}
	return len(msgs), nil
}

// SendDigest queues, for every subscriber, a summary of the posts published since
// in the categories they follow. Subscribers with nothing new get no mail.
func (n *Notifier) SendDigest(ctx context.Context, since time.Time) (int, error) {
	var posts []models.Post
	err := n.db.WithContext(ctx).
		Preload("Categories.Subscribers").
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return 0, fmt.Errorf("load digest posts: %w", err)
	}

	type entry struct {
		user  models.User
		posts []models.Post
		seen  map[uint]bool
	}
	byUser := map[uint]*entry{}
	for _, p := range posts {
		for _, c := range p.Categories {
			for _, u := range c.Subscribers {
				e, ok := byUser[u.ID]
				if !ok {
					e = &entry{user: u, seen: map[uint]bool{}}
					byUser[u.ID] = e
				}
				if !e.seen[p.ID] {
					e.seen[p.ID] = true
					e.posts = append(e.posts, p)
				}
			}
		}
	}

	userIDs := make([]uint, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	queued := 0
	for _, id := range userIDs {
		e := byUser[id]
		if e.user.Email == "" {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Hello, %s!\n\nHere is what was published since %s:\n\n", e.user.Username, since.Format("02.01.2006"))
		for _, p := range e.posts {
			fmt.Fprintf(&b, "- %s\n  %s\n", p.Title, n.postURL(p.ID))
		}
		msg := Message{
			To:      e.user.Email,
			Subject: fmt.Sprintf("%s: weekly digest", n.siteName),
			Body:    b.String(),
		}
		if err := n.out.EnqueueWait(ctx, msg); err != nil {
			return queued, fmt.Errorf("queue digest for %s: %w", e.user.Email, err)
		}
		queued++
	}
	return queued, nil
}

// StartDigest sends a digest every interval until ctx is cancelled.
// Each run covers the posts created since the last successful one.
// The returned channel is closed once the loop has exited.
func (n *Notifier) StartDigest(ctx context.Context, every time.Duration) <-chan struct{} {
	done := make(chan struct{})
	since := time.Now()
	ticker := time.NewTicker(every)
	go func() {
		defer close(done)
		defer ticker.Stop()
		digestLoop(ctx, ticker.C, since, n.SendDigest)
	}()
	return done
}

func digestLoop(ctx context.Context, ticks <-chan time.Time, since time.Time, run func(context.Context, time.Time) (int, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticks:
			count, err := run(ctx, since)
			if err != nil {
				utils.Sugar.Errorf("weekly digest failed: %v", err)
				continue
			}
			utils.Sugar.Infof("weekly digest queued for %d subscribers", count)
			since = now
		}
	}
}

func (n *Notifier) postURL(id uint) string {
	return fmt.Sprintf("%s/news/%d", n.siteURL, id)
}
