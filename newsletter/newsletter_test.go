package newsletter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/models"
)

type captureMailer struct {
	mu    sync.Mutex
	sent  []Message
	fail  bool
	delay time.Duration
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, Message{To: to, Subject: subject, Body: body})
	return nil
}

func (m *captureMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg.To)
	}
	sort.Strings(out)
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase(config.DatabaseSection{Driver: "sqlite", URI: ":memory:"}, "silent")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(ctx)
}

func TestDispatcherDeliversQueuedMessages(t *testing.T) {
	mailer := &captureMailer{}
	d := NewDispatcher(mailer, 2, 10)
	d.Start()

	for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		require.NoError(t, d.Enqueue(Message{To: to, Subject: "s", Body: "b"}))
	}
	drain(t, d)

	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, mailer.recipients())
	assert.ErrorIs(t, d.Enqueue(Message{To: "late@example.com"}), ErrQueueClosed)
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(&captureMailer{}, 1, 1)
	// not started, so nothing consumes the queue
	require.NoError(t, d.Enqueue(Message{To: "a@example.com"}))
	assert.ErrorIs(t, d.Enqueue(Message{To: "b@example.com"}), ErrQueueFull)
	drain(t, d)
}

func TestDispatcherSurvivesSendErrors(t *testing.T) {
	mailer := &captureMailer{fail: true}
	d := NewDispatcher(mailer, 1, 4)
	d.Start()
	require.NoError(t, d.Enqueue(Message{To: "a@example.com"}))
	drain(t, d)
	assert.Empty(t, mailer.recipients())
}

func TestDispatcherEnqueueWaitHonoursContext(t *testing.T) {
	d := NewDispatcher(&captureMailer{}, 1, 1)
	require.NoError(t, d.EnqueueWait(context.Background(), Message{To: "a@example.com"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.EnqueueWait(ctx, Message{To: "b@example.com"}), context.DeadlineExceeded)
	drain(t, d)
	assert.ErrorIs(t, d.Deliver([]Message{{To: "c@example.com"}}), ErrQueueClosed)
}

func TestDeliverWaitsForRoomInsteadOfDropping(t *testing.T) {
	mailer := &captureMailer{delay: time.Millisecond}
	d := NewDispatcher(mailer, 1, 2)
	d.Start()

	var msgs []Message
	for i := 0; i < 30; i++ {
		msgs = append(msgs, Message{To: fmt.Sprintf("r%02d@example.com", i)})
	}
	require.NoError(t, d.Deliver(msgs))
	drain(t, d)

	assert.Len(t, mailer.recipients(), 30)
}

func TestStopGivesUpOnStalledDeliveries(t *testing.T) {
	d := NewDispatcher(&captureMailer{}, 1, 1)
	// never started, so the second message cannot get into the queue
	require.NoError(t, d.Deliver([]Message{{To: "a@example.com"}, {To: "b@example.com"}, {To: "c@example.com"}}))

	stopped := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		d.Stop(ctx)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on a stalled delivery")
	}
	assert.ErrorIs(t, d.Enqueue(Message{To: "late@example.com"}), ErrQueueClosed)
}

type fixture struct {
	db       *gorm.DB
	sport    models.Category
	politics models.Category
	author   *models.Author
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := newTestDB(t)
	f := fixture{db: db, sport: models.Category{Name: "sport"}, politics: models.Category{Name: "politics"}}
	require.NoError(t, db.Create(&f.sport).Error)
	require.NoError(t, db.Create(&f.politics).Error)

	users := map[string]*models.User{}
	for _, name := range []string{"ann", "bob", "cat", "nomail", "writer"} {
		u := &models.User{Username: name, Email: name + "@example.com"}
		if name == "nomail" {
			u.Email = ""
		}
		require.NoError(t, db.Create(u).Error)
		users[name] = u
	}
	// ann follows both categories, bob follows sport, cat follows politics
	require.NoError(t, models.Subscribe(db, &f.sport, users["ann"]))
	require.NoError(t, models.Subscribe(db, &f.politics, users["ann"]))
	require.NoError(t, models.Subscribe(db, &f.sport, users["bob"]))
	require.NoError(t, models.Subscribe(db, &f.politics, users["cat"]))
	require.NoError(t, models.Subscribe(db, &f.sport, users["nomail"]))

	author, err := models.EnsureAuthor(db, users["writer"].ID)
	require.NoError(t, err)
	f.author = author
	return f
}

func (f fixture) post(t *testing.T, title string, cats ...models.Category) *models.Post {
	t.Helper()
	p := &models.Post{AuthorID: f.author.ID, Title: title, Text: "<p>Body of " + title + "</p>", Categories: cats}
	require.NoError(t, f.db.Omit("Categories.*").Create(p).Error)
	return p
}

func TestPostCreatedNotifiesEachSubscriberOnce(t *testing.T) {
	f := newFixture(t)
	mailer := &captureMailer{}
	d := NewDispatcher(mailer, 1, 16)
	d.Start()
	n := NewNotifier(f.db, d, "https://news.example.com/", "Planet")

	p := f.post(t, "Derby tonight", f.sport, f.politics)
	queued, err := n.PostCreated(p)
	require.NoError(t, err)
	drain(t, d)

	assert.Equal(t, 3, queued)
	assert.Equal(t, []string{"ann@example.com", "bob@example.com", "cat@example.com"}, mailer.recipients())

	msg := mailer.sent[0]
	assert.Equal(t, "Derby tonight", msg.Subject)
	assert.Contains(t, msg.Body, "Body of Derby tonight")
	assert.NotContains(t, msg.Body, "<p>")
	assert.Contains(t, msg.Body, "https://news.example.com/news/")
}

func TestPostCreatedWithoutSubscribers(t *testing.T) {
	f := newFixture(t)
	empty := models.Category{Name: "weather"}
	require.NoError(t, f.db.Create(&empty).Error)

	d := NewDispatcher(&captureMailer{}, 1, 4)
	n := NewNotifier(f.db, d, "http://localhost", "Planet")
	queued, err := n.PostCreated(f.post(t, "Rain", empty))
	require.NoError(t, err)
	assert.Zero(t, queued)
	drain(t, d)
}

func TestSendDigestGroupsPostsPerSubscriber(t *testing.T) {
	f := newFixture(t)
	old := f.post(t, "Old news", f.sport)
	require.NoError(t, f.db.Model(old).UpdateColumn("created_at", time.Now().Add(-30*24*time.Hour)).Error)
	f.post(t, "Cup final", f.sport)
	f.post(t, "Election", f.politics)

	mailer := &captureMailer{}
	d := NewDispatcher(mailer, 1, 16)
	d.Start()
	n := NewNotifier(f.db, d, "http://localhost:8080", "Planet")

	queued, err := n.SendDigest(context.Background(), time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	drain(t, d)

	assert.Equal(t, 3, queued)
	bodies := map[string]string{}
	for _, m := range mailer.sent {
		bodies[m.To] = m.Body
		assert.Equal(t, "Planet: weekly digest", m.Subject)
	}
	assert.Contains(t, bodies["ann@example.com"], "Cup final")
	assert.Contains(t, bodies["ann@example.com"], "Election")
	assert.Contains(t, bodies["bob@example.com"], "Cup final")
	assert.NotContains(t, bodies["bob@example.com"], "Election")
	assert.NotContains(t, bodies["cat@example.com"], "Cup final")
	for _, body := range bodies {
		assert.NotContains(t, body, "Old news")
	}
}

func crowd(t *testing.T, f fixture, size int) models.Category {
	t.Helper()
	c := models.Category{Name: "crowd"}
	require.NoError(t, f.db.Create(&c).Error)
	for i := 0; i < size; i++ {
		u := &models.User{Username: fmt.Sprintf("reader%03d", i), Email: fmt.Sprintf("reader%03d@example.com", i)}
		require.NoError(t, f.db.Create(u).Error)
		require.NoError(t, models.Subscribe(f.db, &c, u))
	}
	return c
}

func TestNewsletterReachesAudienceLargerThanQueue(t *testing.T) {
	f := newFixture(t)
	c := crowd(t, f, 40)
	p := f.post(t, "Big crowd", c)

	mailer := &captureMailer{delay: time.Millisecond}
	d := NewDispatcher(mailer, 2, 4)
	d.Start()
	n := NewNotifier(f.db, d, "http://localhost:8080", "Planet")

	queued, err := n.PostCreated(p)
	require.NoError(t, err)
	drain(t, d)
	assert.Equal(t, 40, queued)
	assert.Len(t, mailer.recipients(), 40)

	digestMailer := &captureMailer{delay: time.Millisecond}
	d = NewDispatcher(digestMailer, 2, 4)
	d.Start()
	n = NewNotifier(f.db, d, "http://localhost:8080", "Planet")

	queued, err = n.SendDigest(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	drain(t, d)
	assert.Equal(t, 40, queued)
	assert.Len(t, digestMailer.recipients(), 40)
}

func TestDigestLoopAdvancesOnlyAfterSuccess(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1, t2, t3 := start.Add(time.Hour), start.Add(2*time.Hour), start.Add(3*time.Hour)

	ticks := make(chan time.Time)
	calls := make(chan time.Time, 3)
	failures := 1
	run := func(_ context.Context, since time.Time) (int, error) {
		calls <- since
		if failures > 0 {
			failures--
			return 0, errors.New("database gone")
		}
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		digestLoop(ctx, ticks, start, run)
		close(done)
	}()

	ticks <- t1
	assert.Equal(t, start, <-calls)
	ticks <- t2
	assert.Equal(t, start, <-calls)
	ticks <- t3
	assert.Equal(t, t2, <-calls)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("digest loop kept running after cancel")
	}
}

func TestStartDigestSendsEachPostOnce(t *testing.T) {
	f := newFixture(t)
	mailer := &captureMailer{}
	d := NewDispatcher(mailer, 1, 16)
	d.Start()
	n := NewNotifier(f.db, d, "http://localhost:8080", "Planet")

	ctx, cancel := context.WithCancel(context.Background())
	done := n.StartDigest(ctx, 20*time.Millisecond)
	f.post(t, "Cup final", f.sport)

	want := []string{"ann@example.com", "bob@example.com"}
	assert.Eventually(t, func() bool { return len(mailer.recipients()) >= len(want) }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("digest scheduler kept running after cancel")
	}
	drain(t, d)
	assert.Equal(t, want, mailer.recipients())
}
