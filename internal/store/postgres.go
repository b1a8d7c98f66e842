package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Projects

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description)
		VALUES ($1, $2, $3)
	`, project.ID, project.Name, project.Description)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at FROM projects WHERE id=$1
	`, projectID).Scan(&project.ID, &project.Name, &project.Description, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at FROM projects ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var items []Project
	for rows.Next() {
		var project Project
		if err := rows.Scan(&project.ID, &project.Name, &project.Description, &project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, project)
	}
	return items, rows.Err()
}

// DeleteProject removes the project row; owned categories, nodes, entities,
// images and chat history go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Categories

func (s *PostgresStore) InsertCategory(ctx context.Context, category Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, project_id, space, title, description, sort_order)
		VALUES ($1, $2, $3, $4, $5,
			COALESCE((SELECT MAX(sort_order)+1 FROM categories WHERE project_id=$2 AND space=$3), 0))
	`, category.ID, category.ProjectID, category.Space, category.Title, category.Description)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	var category Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, space, title, description, sort_order, created_at
		FROM categories WHERE id=$1
	`, categoryID).Scan(&category.ID, &category.ProjectID, &category.Space, &category.Title,
		&category.Description, &category.SortOrder, &category.CreatedAt)
	if err != nil {
		return Category{}, err
	}
	return category, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, projectID, space string) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, space, title, description, sort_order, created_at
		FROM categories WHERE project_id=$1 AND space=$2 ORDER BY sort_order, created_at
	`, projectID, space)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []Category
	for rows.Next() {
		var category Category
		if err := rows.Scan(&category.ID, &category.ProjectID, &category.Space, &category.Title,
			&category.Description, &category.SortOrder, &category.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, category)
	}
	return items, rows.Err()
}

// Nodes

func (s *PostgresStore) InsertNode(ctx context.Context, node Node) error {
	images, palette, entityIDs, err := marshalPayload(node.Images, node.Palette, node.EntityIDs)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, category_id, title, description, node_type, images, palette, entity_ids, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			COALESCE((SELECT MAX(sort_order)+1 FROM nodes WHERE category_id=$2), 0))
	`, node.ID, node.CategoryID, node.Title, node.Description, nodeTypeOrText(node.Type), images, palette, entityIDs)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNode(ctx context.Context, nodeID string) (Node, error) {
	var node Node
	var images, palette, entityIDs []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, category_id, title, description, node_type, images, palette, entity_ids, sort_order, created_at
		FROM nodes WHERE id=$1
	`, nodeID).Scan(&node.ID, &node.CategoryID, &node.Title, &node.Description, &node.Type,
		&images, &palette, &entityIDs, &node.SortOrder, &node.CreatedAt)
	if err != nil {
		return Node{}, err
	}
	if err := unmarshalPayload(images, palette, entityIDs, &node.Images, &node.Palette, &node.EntityIDs); err != nil {
		return Node{}, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

func (s *PostgresStore) ListNodes(ctx context.Context, categoryID string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, title, description, node_type, images, palette, entity_ids, sort_order, created_at
		FROM nodes WHERE category_id=$1 ORDER BY sort_order, created_at
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var items []Node
	for rows.Next() {
		var node Node
		var images, palette, entityIDs []byte
		if err := rows.Scan(&node.ID, &node.CategoryID, &node.Title, &node.Description, &node.Type,
			&images, &palette, &entityIDs, &node.SortOrder, &node.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if err := unmarshalPayload(images, palette, entityIDs, &node.Images, &node.Palette, &node.EntityIDs); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		items = append(items, node)
	}
	return items, rows.Err()
}

// Child nodes

func (s *PostgresStore) InsertChildNode(ctx context.Context, child ChildNode) error {
	images, palette, entityIDs, err := marshalPayload(child.Images, child.Palette, child.EntityIDs)
	if err != nil {
		return fmt.Errorf("insert child node: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO child_nodes (id, node_id, title, description, node_type, images, palette, entity_ids, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			COALESCE((SELECT MAX(sort_order)+1 FROM child_nodes WHERE node_id=$2), 0))
	`, child.ID, child.NodeID, child.Title, child.Description, nodeTypeOrText(child.Type), images, palette, entityIDs)
	if err != nil {
		return fmt.Errorf("insert child node: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChildNodes(ctx context.Context, nodeID string) ([]ChildNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_id, title, description, node_type, images, palette, entity_ids, sort_order, created_at
		FROM child_nodes WHERE node_id=$1 ORDER BY sort_order, created_at
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("list child nodes: %w", err)
	}
	defer rows.Close()

	var items []ChildNode
	for rows.Next() {
		var child ChildNode
		var images, palette, entityIDs []byte
		if err := rows.Scan(&child.ID, &child.NodeID, &child.Title, &child.Description, &child.Type,
			&images, &palette, &entityIDs, &child.SortOrder, &child.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan child node: %w", err)
		}
		if err := unmarshalPayload(images, palette, entityIDs, &child.Images, &child.Palette, &child.EntityIDs); err != nil {
			return nil, fmt.Errorf("scan child node: %w", err)
		}
		items = append(items, child)
	}
	return items, rows.Err()
}

// Entities

func (s *PostgresStore) InsertEntity(ctx context.Context, entity Entity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, project_id, title, description, liked)
		VALUES ($1, $2, $3, $4, $5)
	`, entity.ID, entity.ProjectID, entity.Title, entity.Description, entity.Liked)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, projectID, entityID string) (Entity, error) {
	var entity Entity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, description, liked, created_at
		FROM entities WHERE project_id=$1 AND id=$2
	`, projectID, entityID).Scan(&entity.ID, &entity.ProjectID, &entity.Title,
		&entity.Description, &entity.Liked, &entity.CreatedAt)
	if err != nil {
		return Entity{}, err
	}
	return entity, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, projectID string) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, description, liked, created_at
		FROM entities WHERE project_id=$1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var items []Entity
	for rows.Next() {
		var entity Entity
		if err := rows.Scan(&entity.ID, &entity.ProjectID, &entity.Title,
			&entity.Description, &entity.Liked, &entity.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		items = append(items, entity)
	}
	return items, rows.Err()
}

// LikeEntity flips liked to true. The flag is monotonic: there is no write
// path that sets it back to false, repeat likes are no-ops.
func (s *PostgresStore) LikeEntity(ctx context.Context, projectID, entityID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET liked=TRUE WHERE project_id=$1 AND id=$2
	`, projectID, entityID)
	if err != nil {
		return fmt.Errorf("like entity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("like entity: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendNodeEntity adds an entity reference to a node's entity list.
func (s *PostgresStore) AppendNodeEntity(ctx context.Context, nodeID, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET entity_ids = entity_ids || to_jsonb($2::text)
		WHERE id=$1 AND NOT entity_ids @> to_jsonb($2::text)
	`, nodeID, entityID)
	if err != nil {
		return fmt.Errorf("append node entity: %w", err)
	}
	return nil
}

// AppendChildNodeEntity adds an entity reference to a child node's entity list.
func (s *PostgresStore) AppendChildNodeEntity(ctx context.Context, childNodeID, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE child_nodes SET entity_ids = entity_ids || to_jsonb($2::text)
		WHERE id=$1 AND NOT entity_ids @> to_jsonb($2::text)
	`, childNodeID, entityID)
	if err != nil {
		return fmt.Errorf("append child node entity: %w", err)
	}
	return nil
}

// Images

func (s *PostgresStore) InsertImage(ctx context.Context, image Image) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (id, project_id, title, description, url, liked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, image.ID, image.ProjectID, image.Title, image.Description, image.URL, image.Liked)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImage(ctx context.Context, projectID, imageID string) (Image, error) {
	var image Image
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, description, url, liked, created_at
		FROM images WHERE project_id=$1 AND id=$2
	`, projectID, imageID).Scan(&image.ID, &image.ProjectID, &image.Title,
		&image.Description, &image.URL, &image.Liked, &image.CreatedAt)
	if err != nil {
		return Image{}, err
	}
	return image, nil
}

// Chat

func (s *PostgresStore) InsertChatMessage(ctx context.Context, message ChatMessage) error {
	hierarchy := nullableJSON(message.Hierarchy)
	suggestions := nullableJSON(message.Suggestions)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, project_id, role, body, hierarchy, suggestions)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, message.ID, message.ProjectID, message.Role, message.Body, hierarchy, suggestions)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, projectID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, role, body, hierarchy, suggestions, created_at
		FROM chat_messages WHERE project_id=$1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var items []ChatMessage
	for rows.Next() {
		var message ChatMessage
		var hierarchy, suggestions []byte
		if err := rows.Scan(&message.ID, &message.ProjectID, &message.Role, &message.Body,
			&hierarchy, &suggestions, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		message.Hierarchy = json.RawMessage(hierarchy)
		message.Suggestions = json.RawMessage(suggestions)
		items = append(items, message)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetChatMessage(ctx context.Context, messageID string) (ChatMessage, error) {
	var message ChatMessage
	var hierarchy, suggestions []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, role, body, hierarchy, suggestions, created_at
		FROM chat_messages WHERE id=$1
	`, messageID).Scan(&message.ID, &message.ProjectID, &message.Role, &message.Body,
		&hierarchy, &suggestions, &message.CreatedAt)
	if err != nil {
		return ChatMessage{}, err
	}
	message.Hierarchy = json.RawMessage(hierarchy)
	message.Suggestions = json.RawMessage(suggestions)
	return message, nil
}

// MarkSuggestionLiked records the like idempotently; a second like of the
// same (message, index, kind) reports already=true and writes nothing.
func (s *PostgresStore) MarkSuggestionLiked(ctx context.Context, messageID string, index int, kind string) (already bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestion_likes (message_id, suggestion_index, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, suggestion_index, kind) DO NOTHING
	`, messageID, index, kind)
	if err != nil {
		return false, fmt.Errorf("mark suggestion liked: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark suggestion liked: %w", err)
	}
	return affected == 0, nil
}

func (s *PostgresStore) ListSuggestionLikes(ctx context.Context, messageID string) ([]SuggestionLike, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, suggestion_index, kind, liked_at
		FROM suggestion_likes WHERE message_id=$1
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list suggestion likes: %w", err)
	}
	defer rows.Close()

	var items []SuggestionLike
	for rows.Next() {
		var like SuggestionLike
		if err := rows.Scan(&like.MessageID, &like.Index, &like.Kind, &like.LikedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion like: %w", err)
		}
		items = append(items, like)
	}
	return items, rows.Err()
}

func nodeTypeOrText(nodeType string) string {
	if nodeType == "" {
		return NodeTypeText
	}
	return nodeType
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func marshalPayload(images, palette, entityIDs []string) ([]byte, []byte, []byte, error) {
	imagesJSON, err := json.Marshal(emptyIfNil(images))
	if err != nil {
		return nil, nil, nil, err
	}
	paletteJSON, err := json.Marshal(emptyIfNil(palette))
	if err != nil {
		return nil, nil, nil, err
	}
	entityJSON, err := json.Marshal(emptyIfNil(entityIDs))
	if err != nil {
		return nil, nil, nil, err
	}
	return imagesJSON, paletteJSON, entityJSON, nil
}

func unmarshalPayload(images, palette, entityIDs []byte, outImages, outPalette, outEntityIDs *[]string) error {
	if err := json.Unmarshal(images, outImages); err != nil {
		return err
	}
	if err := json.Unmarshal(palette, outPalette); err != nil {
		return err
	}
	if err := json.Unmarshal(entityIDs, outEntityIDs); err != nil {
		return err
	}
	return nil
}

func emptyIfNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// IsNotFound reports whether err is the store's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
