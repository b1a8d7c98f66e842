package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"trellis/api/internal/assist"
	"trellis/api/internal/config"
	"trellis/api/internal/hierarchy"
	"trellis/api/internal/live"
	"trellis/api/internal/search"
	"trellis/api/internal/store"
	"trellis/api/internal/util"
)

type CreateItemInput struct {
	ProjectID   string          `json:"projectId"`
	Space       string          `json:"space"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Hierarchy   hierarchy.Value `json:"hierarchy"`
}

type ChatInput struct {
	ProjectID string          `json:"projectId"`
	Message   string          `json:"message"`
	Hierarchy json.RawMessage `json:"hierarchy"`
}

type GenerateImageInput struct {
	ProjectID         string          `json:"projectId"`
	Prompt            string          `json:"prompt"`
	N                 int             `json:"n"`
	AttachedHierarchy json.RawMessage `json:"attachedHierarchy"`
	EnhancePrompt     bool            `json:"enhancePrompt"`
}

type LikeSuggestionInput struct {
	ProjectID           string `json:"projectId"`
	Space               string `json:"space"`
	MessageID           string `json:"messageId"`
	SuggestionIndex     int    `json:"suggestionIndex"`
	Type                string `json:"type"`
	NodeID              string `json:"nodeId"`
	CategoryID          string `json:"categoryId"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	CategoryTitle       string `json:"categoryTitle"`
	CategoryDescription string `json:"categoryDescription"`
}

type LikeImageInput struct {
	ProjectID       string `json:"projectId"`
	MessageID       string `json:"messageId"`
	SuggestionIndex int    `json:"suggestionIndex"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	URL             string `json:"url"`
}

type dataStore interface {
	Ping(context.Context) error
	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context) ([]store.Project, error)
	DeleteProject(context.Context, string) error
	InsertCategory(context.Context, store.Category) error
	GetCategory(context.Context, string) (store.Category, error)
	InsertNode(context.Context, store.Node) error
	InsertChildNode(context.Context, store.ChildNode) error
	InsertEntity(context.Context, store.Entity) error
	LikeEntity(context.Context, string, string) error
	AppendNodeEntity(context.Context, string, string) error
	AppendChildNodeEntity(context.Context, string, string) error
	InsertImage(context.Context, store.Image) error
	InsertChatMessage(context.Context, store.ChatMessage) error
	MarkSuggestionLiked(context.Context, string, int, string) (bool, error)
}

type assistant interface {
	Chat(ctx context.Context, projectID, message string, attached json.RawMessage) (assist.Reply, error)
	TestChat(ctx context.Context, projectID, message string, attached json.RawMessage) (assist.Reply, error)
	GenerateImages(ctx context.Context, projectID, prompt string, n int, attached json.RawMessage, enhancePrompt bool) ([]assist.GeneratedImage, error)
}

type imageStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

type searcher interface {
	Search(q search.Query) search.Response
	Index(record search.Record)
	Delete(id string)
}

// Service holds the backend's write path: every mutation lands in the store
// and publishes an invalidation so live subscriptions re-snapshot. The
// service never pushes data at clients directly; eventual consistency through
// the live layer is the only update path.
type Service struct {
	cfg       config.Config
	store     dataStore
	bus       live.Bus
	queries   live.Querier
	assistant assistant
	images    imageStore
	search    searcher
}

func New(cfg config.Config, dataStore dataStore, bus live.Bus, queries live.Querier, assistantClient assistant, imageStore imageStore, searchService searcher) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		bus:       bus,
		queries:   queries,
		assistant: assistantClient,
		images:    imageStore,
		search:    searchService,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Live exposes the subscription surface for the streaming endpoint.
func (s *Service) Live() live.Querier {
	return s.queries
}

func (s *Service) publish(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if err := s.bus.Publish(ctx, path); err != nil {
			log.Printf("publish %s: %v", path, err)
		}
	}
}

// Projects

func (s *Service) CreateProject(ctx context.Context, name, description string, includeSampleData bool) (store.Project, error) {
	if strings.TrimSpace(name) == "" {
		return store.Project{}, validationError("name is required")
	}

	project := store.Project{
		ID:          util.NewID("proj"),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return store.Project{}, fmt.Errorf("create project: %w", err)
	}

	if includeSampleData {
		if err := s.seedSampleData(ctx, project.ID); err != nil {
			// The project exists; seeding is best-effort.
			log.Printf("seed sample data for %s: %v", project.ID, err)
		}
	}

	s.publish(ctx, live.ProjectPath(project.ID),
		live.SpacePath(project.ID, store.SpaceMaterial),
		live.SpacePath(project.ID, store.SpaceConceptual))
	return project, nil
}

func (s *Service) seedSampleData(ctx context.Context, projectID string) error {
	starters := map[string]string{
		store.SpaceMaterial:   "Materials",
		store.SpaceConceptual: "Themes",
	}
	for space, title := range starters {
		category := store.Category{
			ID:          util.NewID("cat"),
			ProjectID:   projectID,
			Space:       space,
			Title:       title,
			Description: "Starter category",
		}
		if err := s.store.InsertCategory(ctx, category); err != nil {
			return err
		}
		s.indexCategory(category)
	}
	return nil
}

func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	items, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return items, nil
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.publish(ctx, live.ProjectPath(projectID))
	return nil
}

// CreateItem handles the manual-add submission. What gets created is derived
// from the attached hierarchy's depth with the selection prefix rule: no
// category selected creates a category, category-only creates a node, a node
// (or child node) creates an entity attached to it.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (map[string]any, error) {
	if !store.ValidSpace(input.Space) {
		return nil, validationError("space must be material or conceptual")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, validationError("title and description are required")
	}
	if !input.Hierarchy.Valid() {
		return nil, validationError("hierarchy is not a contiguous prefix")
	}
	if _, err := s.store.GetProject(ctx, input.ProjectID); err != nil {
		return nil, err
	}

	switch input.Hierarchy.ToAdd() {
	case hierarchy.AddCategory:
		category := store.Category{
			ID:          util.NewID("cat"),
			ProjectID:   input.ProjectID,
			Space:       input.Space,
			Title:       title,
			Description: description,
		}
		if err := s.store.InsertCategory(ctx, category); err != nil {
			return nil, fmt.Errorf("create category: %w", err)
		}
		s.indexCategory(category)
		s.publish(ctx, live.SpacePath(input.ProjectID, input.Space))
		return map[string]any{"id": category.ID, "kind": "category"}, nil

	case hierarchy.AddNode:
		node := store.Node{
			ID:          util.NewID("node"),
			CategoryID:  input.Hierarchy.Category.ID,
			Title:       title,
			Description: description,
			Type:        store.NodeTypeText,
		}
		if err := s.store.InsertNode(ctx, node); err != nil {
			return nil, fmt.Errorf("create node: %w", err)
		}
		s.indexNode(input.ProjectID, input.Space, node)
		s.publish(ctx, live.NodesPath(input.ProjectID, input.Space, node.CategoryID))
		return map[string]any{"id": node.ID, "kind": "node"}, nil

	default:
		// A node or child node selection attaches an entity to its deepest
		// level; the tree itself never grows past three levels.
		return s.createEntityAt(ctx, input, title, description)
	}
}

func (s *Service) createEntityAt(ctx context.Context, input CreateItemInput, title, description string) (map[string]any, error) {
	entity := store.Entity{
		ID:          util.NewID("ent"),
		ProjectID:   input.ProjectID,
		Title:       title,
		Description: description,
	}
	if err := s.store.InsertEntity(ctx, entity); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}

	// Attach to the deepest selected level.
	paths := []string{live.EntityPath(input.ProjectID, entity.ID)}
	if input.Hierarchy.ChildNode != nil {
		if err := s.store.AppendChildNodeEntity(ctx, input.Hierarchy.ChildNode.ID, entity.ID); err != nil {
			return nil, fmt.Errorf("attach entity: %w", err)
		}
		paths = append(paths, live.ChildNodesPath(input.ProjectID, input.Space, input.Hierarchy.Category.ID, input.Hierarchy.Node.ID))
	} else {
		if err := s.store.AppendNodeEntity(ctx, input.Hierarchy.Node.ID, entity.ID); err != nil {
			return nil, fmt.Errorf("attach entity: %w", err)
		}
		paths = append(paths, live.NodesPath(input.ProjectID, input.Space, input.Hierarchy.Category.ID))
	}

	s.search.Index(search.Record{
		ID: entity.ID, Type: string(search.ResultEntity),
		Title: entity.Title, Description: entity.Description, ProjectID: entity.ProjectID,
	})
	s.publish(ctx, paths...)
	return map[string]any{"id": entity.ID, "kind": "entity"}, nil
}

// Chat

func (s *Service) SendChat(ctx context.Context, input ChatInput, test bool) (store.ChatMessage, error) {
	if strings.TrimSpace(input.Message) == "" {
		return store.ChatMessage{}, validationError("message is required")
	}
	if _, err := s.store.GetProject(ctx, input.ProjectID); err != nil {
		return store.ChatMessage{}, err
	}

	userMessage := store.ChatMessage{
		ID:        util.NewID("msg"),
		ProjectID: input.ProjectID,
		Role:      "user",
		Body:      input.Message,
		Hierarchy: input.Hierarchy,
	}
	if err := s.store.InsertChatMessage(ctx, userMessage); err != nil {
		return store.ChatMessage{}, fmt.Errorf("persist user message: %w", err)
	}
	s.publish(ctx, live.ChatPath(input.ProjectID))

	var reply assist.Reply
	var err error
	if test {
		reply, err = s.assistant.TestChat(ctx, input.ProjectID, input.Message, input.Hierarchy)
	} else {
		reply, err = s.assistant.Chat(ctx, input.ProjectID, input.Message, input.Hierarchy)
	}
	if err != nil {
		return store.ChatMessage{}, assistantError(err)
	}

	suggestions, marshalErr := json.Marshal(reply.Suggestions)
	if marshalErr != nil {
		return store.ChatMessage{}, fmt.Errorf("encode suggestions: %w", marshalErr)
	}
	assistantMessage := store.ChatMessage{
		ID:          util.NewID("msg"),
		ProjectID:   input.ProjectID,
		Role:        "assistant",
		Body:        reply.Message,
		Suggestions: suggestions,
	}
	if err := s.store.InsertChatMessage(ctx, assistantMessage); err != nil {
		return store.ChatMessage{}, fmt.Errorf("persist assistant message: %w", err)
	}
	s.publish(ctx, live.ChatPath(input.ProjectID))
	return assistantMessage, nil
}

// Images

func (s *Service) GenerateImage(ctx context.Context, input GenerateImageInput) ([]store.Image, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, validationError("prompt is required")
	}
	if s.images == nil {
		return nil, domainError(http.StatusServiceUnavailable, codeImagesUnavailable, "Image storage not configured", nil)
	}
	if _, err := s.store.GetProject(ctx, input.ProjectID); err != nil {
		return nil, err
	}
	n := input.N
	if n <= 0 {
		n = 1
	}

	generated, err := s.assistant.GenerateImages(ctx, input.ProjectID, input.Prompt, n, input.AttachedHierarchy, input.EnhancePrompt)
	if err != nil {
		return nil, assistantError(err)
	}

	var items []store.Image
	for _, img := range generated {
		id := util.NewID("img")
		url, err := s.images.Put(ctx, input.ProjectID+"/"+id, img.Data, img.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store generated image: %w", err)
		}
		image := store.Image{
			ID:          id,
			ProjectID:   input.ProjectID,
			Title:       input.Prompt,
			Description: "",
			URL:         url,
		}
		if err := s.store.InsertImage(ctx, image); err != nil {
			return nil, fmt.Errorf("persist image: %w", err)
		}
		s.publish(ctx, live.ImagePath(input.ProjectID, id))
		items = append(items, image)
	}
	return items, nil
}

// Likes

// LikeSuggestion materializes a liked node suggestion into the tree. When the
// suggestion names no existing category, the proposed category is created in
// the same request. Repeat likes of the same suggestion are no-ops.
func (s *Service) LikeSuggestion(ctx context.Context, input LikeSuggestionInput) (map[string]any, error) {
	if !store.ValidSpace(input.Space) {
		return nil, validationError("space must be material or conceptual")
	}
	if _, err := s.store.GetProject(ctx, input.ProjectID); err != nil {
		return nil, err
	}

	already, err := s.store.MarkSuggestionLiked(ctx, input.MessageID, input.SuggestionIndex, "nodes")
	if err != nil {
		return nil, err
	}
	if already {
		return map[string]any{"liked": true, "already": true}, nil
	}

	categoryID := input.CategoryID
	if categoryID == "" {
		categoryTitle := input.CategoryTitle
		categoryDescription := input.CategoryDescription
		if categoryTitle == "" {
			categoryTitle = input.Title
			categoryDescription = input.Description
		}
		category := store.Category{
			ID:          util.NewID("cat"),
			ProjectID:   input.ProjectID,
			Space:       input.Space,
			Title:       categoryTitle,
			Description: categoryDescription,
		}
		if err := s.store.InsertCategory(ctx, category); err != nil {
			return nil, fmt.Errorf("materialize category: %w", err)
		}
		s.indexCategory(category)
		s.publish(ctx, live.SpacePath(input.ProjectID, input.Space))
		categoryID = category.ID
	}

	node := store.Node{
		ID:          util.NewID("node"),
		CategoryID:  categoryID,
		Title:       input.Title,
		Description: input.Description,
		Type:        store.NodeTypeText,
	}
	if err := s.store.InsertNode(ctx, node); err != nil {
		return nil, fmt.Errorf("materialize node: %w", err)
	}
	s.indexNode(input.ProjectID, input.Space, node)
	s.publish(ctx, live.NodesPath(input.ProjectID, input.Space, categoryID), live.ChatPath(input.ProjectID))
	return map[string]any{"liked": true, "nodeId": node.ID, "categoryId": categoryID}, nil
}

func (s *Service) LikeImage(ctx context.Context, input LikeImageInput) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, input.ProjectID); err != nil {
		return nil, err
	}

	already, err := s.store.MarkSuggestionLiked(ctx, input.MessageID, input.SuggestionIndex, "images")
	if err != nil {
		return nil, err
	}
	if already {
		return map[string]any{"liked": true, "already": true}, nil
	}

	image := store.Image{
		ID:          util.NewID("img"),
		ProjectID:   input.ProjectID,
		Title:       input.Title,
		Description: input.Description,
		URL:         input.URL,
		Liked:       true,
	}
	if err := s.store.InsertImage(ctx, image); err != nil {
		return nil, fmt.Errorf("persist liked image: %w", err)
	}
	s.publish(ctx, live.ImagePath(input.ProjectID, image.ID), live.ChatPath(input.ProjectID))
	return map[string]any{"liked": true, "imageId": image.ID}, nil
}

func (s *Service) LikeEntity(ctx context.Context, projectID, entityID, messageID string) error {
	if err := s.store.LikeEntity(ctx, projectID, entityID); err != nil {
		return err
	}
	paths := []string{live.EntityPath(projectID, entityID)}
	if messageID != "" {
		paths = append(paths, live.ChatPath(projectID))
	}
	s.publish(ctx, paths...)
	return nil
}

// Search

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) indexCategory(category store.Category) {
	s.search.Index(search.Record{
		ID: category.ID, Type: string(search.ResultCategory),
		Title: category.Title, Description: category.Description,
		ProjectID: category.ProjectID, Space: category.Space,
	})
}

func (s *Service) indexNode(projectID, space string, node store.Node) {
	s.search.Index(search.Record{
		ID: node.ID, Type: string(search.ResultNode),
		Title: node.Title, Description: node.Description,
		ProjectID: projectID, Space: space,
	})
}
