package characters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannel = "character-events"

type memoryStore struct {
	mu        sync.Mutex
	records   map[int64]Character
	nextID    int64
	failWith  error
	mutations int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[int64]Character)}
}

func (store *memoryStore) Create(_ context.Context, character Character) (Character, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return Character{}, store.failWith
	}
	store.nextID++
	character.ID = store.nextID
	store.records[character.ID] = character
	store.mutations++
	return character, nil
}

func (store *memoryStore) Get(_ context.Context, id CharacterID) (Character, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return Character{}, store.failWith
	}
	character, ok := store.records[id.Int64()]
	if !ok {
		return Character{}, ErrNotFound
	}
	return character, nil
}

func (store *memoryStore) List(_ context.Context) ([]Character, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return nil, store.failWith
	}
	listed := make([]Character, 0, len(store.records))
	for _, character := range store.records {
		listed = append(listed, character)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].ID < listed[j].ID })
	return listed, nil
}

func (store *memoryStore) Update(_ context.Context, character Character) (Character, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return Character{}, store.failWith
	}
	if _, ok := store.records[character.ID]; !ok {
		return Character{}, ErrNotFound
	}
	store.records[character.ID] = character
	store.mutations++
	return character, nil
}

func (store *memoryStore) Delete(_ context.Context, id CharacterID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return store.failWith
	}
	if _, ok := store.records[id.Int64()]; !ok {
		return ErrNotFound
	}
	delete(store.records, id.Int64())
	store.mutations++
	return nil
}

func (store *memoryStore) mutationCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.mutations
}

type stubImages struct {
	mu           sync.Mutex
	resolveCalls []string
	deleteCalls  []string
	deleteResult bool
	deleteGate   chan struct{}
	panicOnClean bool
}

func (images *stubImages) Resolve(_ context.Context, characterName string) string {
	images.mu.Lock()
	defer images.mu.Unlock()
	images.resolveCalls = append(images.resolveCalls, characterName)
	return "https://images.test/" + characterName + ".jpg"
}

func (images *stubImages) Delete(ctx context.Context, characterName string) bool {
	if images.deleteGate != nil {
		select {
		case <-images.deleteGate:
		case <-ctx.Done():
			return false
		}
	}
	images.mu.Lock()
	images.deleteCalls = append(images.deleteCalls, characterName)
	images.mu.Unlock()
	if images.panicOnClean {
		panic("blob client exploded")
	}
	return images.deleteResult
}

func (images *stubImages) resolved() []string {
	images.mu.Lock()
	defer images.mu.Unlock()
	return append([]string(nil), images.resolveCalls...)
}

func (images *stubImages) deleted() []string {
	images.mu.Lock()
	defer images.mu.Unlock()
	return append([]string(nil), images.deleteCalls...)
}

type failingPublisher struct {
	err error
}

func (publisher failingPublisher) Publish(context.Context, notify.Message, string) error {
	return publisher.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []notify.Message
	channels []string
	ctxErrs  []error
}

func (publisher *recordingPublisher) Publish(ctx context.Context, message notify.Message, channel string) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.messages = append(publisher.messages, message)
	publisher.channels = append(publisher.channels, channel)
	publisher.ctxErrs = append(publisher.ctxErrs, ctx.Err())
	return nil
}

func (publisher *recordingPublisher) published() []notify.Message {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	return append([]notify.Message(nil), publisher.messages...)
}

type serviceFixture struct {
	service   *Service
	store     *memoryStore
	images    *stubImages
	publisher *recordingPublisher
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	store := newMemoryStore()
	images := &stubImages{deleteResult: true}
	publisher := &recordingPublisher{}
	notifier, err := notify.NewTolerant(notify.TolerantConfig{Publisher: publisher})
	require.NoError(t, err)

	service, err := NewService(ServiceConfig{
		Store:          store,
		Images:         images,
		Notifier:       notifier,
		Channel:        testChannel,
		CleanupTimeout: time.Second,
	})
	require.NoError(t, err)

	return serviceFixture{service: service, store: store, images: images, publisher: publisher}
}

func waitForCleanup(t *testing.T, service *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, service.WaitForCleanup(ctx))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, code, serviceErr.Code())
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	notifier, err := notify.NewTolerant(notify.TolerantConfig{Publisher: &recordingPublisher{}})
	require.NoError(t, err)

	_, err = NewService(ServiceConfig{Images: &stubImages{}, Notifier: notifier, Channel: testChannel})
	requireCode(t, err, "characters.service.new.missing_store")

	_, err = NewService(ServiceConfig{Store: newMemoryStore(), Notifier: notifier, Channel: testChannel})
	requireCode(t, err, "characters.service.new.missing_images")

	_, err = NewService(ServiceConfig{Store: newMemoryStore(), Images: &stubImages{}, Channel: testChannel})
	requireCode(t, err, "characters.service.new.missing_notifier")

	_, err = NewService(ServiceConfig{Store: newMemoryStore(), Images: &stubImages{}, Notifier: notifier})
	requireCode(t, err, "characters.service.new.missing_channel")
}

func TestCreateResolvesImageAndAnnounces(t *testing.T) {
	fixture := newServiceFixture(t)
	input := validInput()
	input.Name = "  Goku  "
	input.Planet = "Earth "
	callerURL := "https://caller.test/ignored.jpg"
	input.ImageURL = &callerURL

	created, err := fixture.service.Create(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "  Goku  ", created.Name)
	assert.Equal(t, "Earth ", created.Planet)
	require.NotNil(t, created.ImageURL)
	assert.Equal(t, "https://images.test/  Goku  .jpg", *created.ImageURL)
	assert.Equal(t, []string{"  Goku  "}, fixture.images.resolved())

	published := fixture.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "New character 1 created.", published[0].Data)
	assert.Equal(t, notify.OperationCreated, published[0].Operation)
	assert.NotEmpty(t, published[0].ID)
	assert.Equal(t, []string{testChannel}, fixture.publisher.channels)
}

func TestCreateRejectsInvalidInputWithoutSideEffects(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.Create(context.Background(), Input{Name: "Goku"})

	require.ErrorIs(t, err, ErrInvalidInput)
	requireCode(t, err, "characters.create.invalid_input")
	assert.Zero(t, fixture.store.mutationCount())
	assert.Empty(t, fixture.images.resolved())
	assert.Empty(t, fixture.publisher.published())
}

func TestCreateSucceedsWhenPublisherFails(t *testing.T) {
	store := newMemoryStore()
	notifier, err := notify.NewTolerant(notify.TolerantConfig{Publisher: failingPublisher{err: errors.New("queue down")}})
	require.NoError(t, err)
	service, err := NewService(ServiceConfig{Store: store, Images: &stubImages{}, Notifier: notifier, Channel: testChannel})
	require.NoError(t, err)

	created, err := service.Create(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, 1, store.mutationCount())
}

func TestCreateReportsStoreFailureWithoutAnnouncing(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.store.failWith = ErrStorageUnavailable

	_, err := fixture.service.Create(context.Background(), validInput())

	require.ErrorIs(t, err, ErrStorageUnavailable)
	requireCode(t, err, "characters.create.store_failed")
	assert.Empty(t, fixture.publisher.published())
}

func TestCreateHonorsCancellationBeforeCommit(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fixture.service.Create(ctx, validInput())

	require.ErrorIs(t, err, context.Canceled)
	requireCode(t, err, "characters.create.canceled")
	assert.Zero(t, fixture.store.mutationCount())
	assert.Empty(t, fixture.publisher.published())
}

func TestGetAndListReturnStoredCharacters(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	listed, err := fixture.service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)

	loaded, err := fixture.service.Get(ctx, CharacterID(created.ID))
	require.NoError(t, err)
	assert.Equal(t, created, loaded)

	listed, err = fixture.service.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Character{created}, listed)

	_, err = fixture.service.Get(ctx, CharacterID(77))
	require.ErrorIs(t, err, ErrNotFound)
	requireCode(t, err, "characters.get.not_found")
}

func TestUpdateKeepsExplicitImageURL(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)

	explicit := "https://cdn.test/custom.jpg"
	replacement := Input{Name: "Goku", Race: "Saiyan", Planet: "Earth", Transformation: "Ultra Instinct", Technique: "Spirit Bomb", ImageURL: &explicit}
	updated, err := fixture.service.Update(ctx, CharacterID(created.ID), replacement)

	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Ultra Instinct", updated.Transformation)
	require.NotNil(t, updated.ImageURL)
	assert.Equal(t, explicit, *updated.ImageURL)
	assert.Len(t, fixture.images.resolved(), 1)

	published := fixture.publisher.published()
	require.Len(t, published, 2)
	assert.Equal(t, "Character 1 updated.", published[1].Data)
}

func TestUpdateResolvesImageWhenURLAbsent(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)

	replacement := validInput()
	replacement.Name = "Gohan"
	updated, err := fixture.service.Update(ctx, CharacterID(created.ID), replacement)

	require.NoError(t, err)
	require.NotNil(t, updated.ImageURL)
	assert.Equal(t, "https://images.test/Gohan.jpg", *updated.ImageURL)
	assert.Equal(t, []string{"Goku", "Gohan"}, fixture.images.resolved())
}

func TestUpdateMissingCharacterReportsNotFoundBeforeValidation(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.Update(context.Background(), CharacterID(5), Input{})

	require.ErrorIs(t, err, ErrNotFound)
	requireCode(t, err, "characters.update.not_found")
	assert.Empty(t, fixture.publisher.published())
}

func TestUpdateRejectsInvalidInput(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = fixture.service.Update(ctx, CharacterID(created.ID), Input{Name: "Goku"})

	require.ErrorIs(t, err, ErrInvalidInput)
	stored, err := fixture.service.Get(ctx, CharacterID(created.ID))
	require.NoError(t, err)
	assert.Equal(t, created, stored)
	assert.Len(t, fixture.publisher.published(), 1)
}

func TestDeleteRemovesRecordCleansImageAndAnnounces(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, fixture.service.Delete(ctx, CharacterID(created.ID)))
	waitForCleanup(t, fixture.service)

	_, err = fixture.service.Get(ctx, CharacterID(created.ID))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"Goku"}, fixture.images.deleted())

	published := fixture.publisher.published()
	require.Len(t, published, 2)
	assert.Equal(t, "Character 1 deleted.", published[1].Data)
	assert.Equal(t, notify.OperationDeleted, published[1].Operation)
}

func TestDeleteTwiceReportsNotFound(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, fixture.service.Delete(ctx, CharacterID(created.ID)))
	err = fixture.service.Delete(ctx, CharacterID(created.ID))
	waitForCleanup(t, fixture.service)

	require.ErrorIs(t, err, ErrNotFound)
	requireCode(t, err, "characters.delete.not_found")
	assert.Len(t, fixture.images.deleted(), 1)
	assert.Len(t, fixture.publisher.published(), 2)
}

func TestDeleteDoesNotWaitForImageCleanup(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.images.deleteGate = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- fixture.service.Delete(ctx, CharacterID(created.ID))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("delete blocked on image cleanup")
	}

	cancel()
	assert.Empty(t, fixture.images.deleted())
	close(fixture.images.deleteGate)
	waitForCleanup(t, fixture.service)
	assert.Equal(t, []string{"Goku"}, fixture.images.deleted())
}

func TestDeleteSucceedsWhenImageCleanupFailsOrPanics(t *testing.T) {
	for _, images := range []*stubImages{{deleteResult: false}, {panicOnClean: true}} {
		store := newMemoryStore()
		notifier, err := notify.NewTolerant(notify.TolerantConfig{Publisher: &recordingPublisher{}})
		require.NoError(t, err)
		service, err := NewService(ServiceConfig{Store: store, Images: images, Notifier: notifier, Channel: testChannel})
		require.NoError(t, err)

		created, err := service.Create(context.Background(), validInput())
		require.NoError(t, err)

		require.NoError(t, service.Delete(context.Background(), CharacterID(created.ID)))
		waitForCleanup(t, service)
		assert.Len(t, images.deleted(), 1)
	}
}

func TestAnnouncementSurvivesRequestCancellation(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	created, err := fixture.service.Create(ctx, validInput())
	require.NoError(t, err)
	cancel()

	fixture.service.announce(ctx, notify.OperationUpdated, created.ID)

	fixture.publisher.mu.Lock()
	defer fixture.publisher.mu.Unlock()
	require.Len(t, fixture.publisher.ctxErrs, 2)
	assert.NoError(t, fixture.publisher.ctxErrs[1])
}
