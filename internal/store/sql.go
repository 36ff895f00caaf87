package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

// sqlStore implements Store and InboundLedger over database/sql. Queries are written with
// '?' placeholders and rewritten by bind for drivers that need numbered ones.
type sqlStore struct {
	db   *sql.DB
	name string
	bind func(string) string
}

func questionBind(q string) string { return q }

// dollarBind rewrites '?' placeholders as $1, $2, ... for PostgreSQL.
func dollarBind(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nilIfZeroTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

const conversationColumns = `id, phone_number, state, property_id, property_confirmed, guest_name, timezone,
	guest_profile, last_recommendation_text, last_request_category, check_out_date,
	last_interaction_at, created_at, updated_at`

func (s *sqlStore) GetConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+conversationColumns+` FROM conversations WHERE phone_number = ?`), phoneNumber)

	var c models.Conversation
	var state string
	var propertyID, guestName, lastRec, lastCat, profileJSON sql.NullString
	var checkOut sql.NullTime
	err := row.Scan(&c.ID, &c.PhoneNumber, &state, &propertyID, &c.PropertyConfirmed, &guestName, &c.Timezone,
		&profileJSON, &lastRec, &lastCat, &checkOut, &c.LastInteractionAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetConversation failed", "error", err, "phone", phoneNumber)
		return nil, fmt.Errorf("failed to get conversation for %s: %w", phoneNumber, err)
	}

	// Unknown state strings are kept as-is; the state machine treats them as an implicit reset.
	c.State = models.ConversationState(state)
	c.PropertyID = nullStringPtr(propertyID)
	c.GuestName = nullStringPtr(guestName)
	c.LastRecommendationText = nullStringPtr(lastRec)
	c.LastRequestCategory = nullStringPtr(lastCat)
	if checkOut.Valid {
		t := checkOut.Time
		c.CheckOutDate = &t
	}
	if profileJSON.Valid && profileJSON.String != "" {
		if err := json.Unmarshal([]byte(profileJSON.String), &c.GuestProfile); err != nil {
			// A corrupt profile is dropped rather than failing the whole conversation.
			slog.Warn(s.name+" GetConversation: discarding unreadable guest profile", "error", err, "phone", phoneNumber)
			c.GuestProfile = models.GuestProfile{}
		}
	}
	if c.Timezone == "" {
		c.Timezone = models.DefaultTimezone
	}
	return &c, nil
}

func (s *sqlStore) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.PhoneNumber == "" {
		return models.ErrEmptyPhoneNumber
	}
	profile, err := json.Marshal(conv.GuestProfile)
	if err != nil {
		return fmt.Errorf("failed to encode guest profile: %w", err)
	}

	query := s.bind(`INSERT INTO conversations (` + conversationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone_number) DO UPDATE SET
			state = excluded.state,
			property_id = excluded.property_id,
			property_confirmed = excluded.property_confirmed,
			guest_name = excluded.guest_name,
			timezone = excluded.timezone,
			guest_profile = excluded.guest_profile,
			last_recommendation_text = excluded.last_recommendation_text,
			last_request_category = excluded.last_request_category,
			check_out_date = excluded.check_out_date,
			last_interaction_at = excluded.last_interaction_at,
			updated_at = excluded.updated_at`)

	_, err = s.db.ExecContext(ctx, query,
		conv.ID, conv.PhoneNumber, string(conv.State), nilIfEmpty(conv.PropertyID), conv.PropertyConfirmed,
		nilIfEmpty(conv.GuestName), conv.Timezone, string(profile), nilIfEmpty(conv.LastRecommendationText),
		nilIfEmpty(conv.LastRequestCategory), nilIfZeroTime(conv.CheckOutDate),
		conv.LastInteractionAt.UTC(), conv.CreatedAt.UTC(), conv.UpdatedAt.UTC(),
	)
	if err != nil {
		slog.Error(s.name+" UpsertConversation failed", "error", err, "phone", conv.PhoneNumber)
		return fmt.Errorf("failed to upsert conversation for %s: %w", conv.PhoneNumber, err)
	}
	slog.Debug(s.name+" UpsertConversation succeeded", "phone", conv.PhoneNumber, "state", conv.State)
	return nil
}

func (s *sqlStore) AppendMessage(ctx context.Context, msg models.ConversationMessage) error {
	_, err := s.db.ExecContext(ctx,
		s.bind(`INSERT INTO conversation_messages (id, conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`),
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Timestamp.UTC(),
	)
	if err != nil {
		slog.Error(s.name+" AppendMessage failed", "error", err, "conversation_id", msg.ConversationID)
		return fmt.Errorf("failed to append message to %s: %w", msg.ConversationID, err)
	}
	return nil
}

func (s *sqlStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.ConversationMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, conversation_id, role, content, timestamp FROM conversation_messages
		WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?`), conversationID, limit)
	if err != nil {
		slog.Error(s.name+" ListMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	// newest first from the query; callers want chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

const propertyColumns = `id, code, name, address, check_in_time, check_out_time, wifi_name, wifi_password,
	parking_instructions, access_instructions, emergency_contact, amenities, house_rules,
	knowledge_base, local_recommendations`

func (s *sqlStore) getProperty(ctx context.Context, where string, arg string) (*models.Property, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+propertyColumns+` FROM properties WHERE `+where+` = ?`), arg)
	var (
		p         models.Property
		amenities string
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Address, &p.CheckInTime, &p.CheckOutTime, &p.WifiName,
		&p.WifiPassword, &p.ParkingInstructions, &p.AccessInstructions, &p.EmergencyContact, &amenities,
		&p.HouseRules, &p.KnowledgeBase, &p.LocalRecommendations)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" getProperty failed", "error", err, where, arg)
		return nil, fmt.Errorf("failed to get property by %s: %w", where, err)
	}
	if amenities != "" {
		if err := json.Unmarshal([]byte(amenities), &p.Amenities); err != nil {
			return nil, fmt.Errorf("failed to decode amenities for property %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (s *sqlStore) GetPropertyByCode(ctx context.Context, code string) (*models.Property, error) {
	return s.getProperty(ctx, "code", code)
}

func (s *sqlStore) GetPropertyByID(ctx context.Context, id string) (*models.Property, error) {
	return s.getProperty(ctx, "id", id)
}

func (s *sqlStore) SaveProperty(ctx context.Context, p models.Property) error {
	if err := p.Validate(); err != nil {
		return err
	}
	amenities, err := json.Marshal(p.Amenities)
	if err != nil {
		return fmt.Errorf("failed to encode amenities: %w", err)
	}
	query := s.bind(`INSERT INTO properties (` + propertyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			check_in_time = excluded.check_in_time,
			check_out_time = excluded.check_out_time,
			wifi_name = excluded.wifi_name,
			wifi_password = excluded.wifi_password,
			parking_instructions = excluded.parking_instructions,
			access_instructions = excluded.access_instructions,
			emergency_contact = excluded.emergency_contact,
			amenities = excluded.amenities,
			house_rules = excluded.house_rules,
			knowledge_base = excluded.knowledge_base,
			local_recommendations = excluded.local_recommendations`)
	_, err = s.db.ExecContext(ctx, query, p.ID, p.Code, p.Name, p.Address, p.CheckInTime, p.CheckOutTime,
		p.WifiName, p.WifiPassword, p.ParkingInstructions, p.AccessInstructions, p.EmergencyContact,
		string(amenities), p.HouseRules, p.KnowledgeBase, p.LocalRecommendations)
	if err != nil {
		slog.Error(s.name+" SaveProperty failed", "error", err, "code", p.Code)
		return fmt.Errorf("failed to save property %s: %w", p.Code, err)
	}
	slog.Debug(s.name+" SaveProperty succeeded", "code", p.Code)
	return nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, phoneNumber string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.bind(`INSERT INTO inbound_deliveries (message_id, phone_number, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`),
		messageID, phoneNumber, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inbound rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	result, err := s.db.ExecContext(ctx,
		s.bind(`UPDATE inbound_deliveries SET processed_at = ? WHERE message_id = ?`),
		time.Now().UTC(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing " + s.name + " database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close "+s.name+" database", "error", err)
	}
	return err
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}
