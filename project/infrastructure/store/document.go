package store

import (
	"time"

	"hackathon-gallery/project/domain"
)

// projectDoc は永続化用の作品表現です（pebble/postgres は JSON、Firestore はフィールドタグで保存）
type projectDoc struct {
	Name              string        `json:"name" firestore:"name"`
	NameKey           string        `json:"name_key" firestore:"name_key"`
	Description       string        `json:"description" firestore:"description"`
	URL               string        `json:"url" firestore:"url"`
	TeamNames         []string      `json:"team_names" firestore:"team_names"`
	TeamMembers       []string      `json:"team_members" firestore:"team_members"`
	Sender            string        `json:"sender" firestore:"sender"`
	GroupName         string        `json:"group_name" firestore:"group_name"`
	PrimaryMessageID  string        `json:"primary_message_id" firestore:"primary_message_id"`
	RelatedMessageIDs []string      `json:"related_message_ids" firestore:"related_message_ids"`
	Timestamp         time.Time     `json:"timestamp" firestore:"timestamp"`
	Reactions         []reactionDoc `json:"reactions" firestore:"reactions"`
	Replies           []replyDoc    `json:"replies" firestore:"replies"`
}

type reactionDoc struct {
	MessageID string    `json:"message_id" firestore:"message_id"`
	Emoji     string    `json:"emoji" firestore:"emoji"`
	Sender    string    `json:"sender" firestore:"sender"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	ChatID    string    `json:"chat_id" firestore:"chat_id"`
}

type replyDoc struct {
	MessageID       string    `json:"message_id" firestore:"message_id"`
	QuotedMessageID string    `json:"quoted_message_id" firestore:"quoted_message_id"`
	Text            string    `json:"text" firestore:"text"`
	Sender          string    `json:"sender" firestore:"sender"`
	Timestamp       time.Time `json:"timestamp" firestore:"timestamp"`
	ChatID          string    `json:"chat_id" firestore:"chat_id"`
}

func toProjectDoc(p *domain.ProjectRecord) projectDoc {
	d := projectDoc{
		Name:              p.Name,
		NameKey:           domain.NameURLKey(p.Name, p.URL),
		Description:       p.Description,
		URL:               p.URL,
		TeamNames:         nonNil(p.TeamNames),
		TeamMembers:       nonNil(p.TeamMembers),
		Sender:            p.Sender,
		GroupName:         p.GroupName,
		PrimaryMessageID:  p.PrimaryMessageID,
		RelatedMessageIDs: nonNil(p.RelatedMessageIDs),
		Timestamp:         p.Timestamp.UTC(),
		Reactions:         make([]reactionDoc, 0, len(p.Reactions)),
		Replies:           make([]replyDoc, 0, len(p.Replies)),
	}
	for _, r := range p.Reactions {
		d.Reactions = append(d.Reactions, toReactionDoc(&r))
	}
	for _, r := range p.Replies {
		d.Replies = append(d.Replies, toReplyDoc(&r))
	}
	return d
}

func (d projectDoc) toDomain() *domain.ProjectRecord {
	p := &domain.ProjectRecord{
		Name:              d.Name,
		Description:       d.Description,
		URL:               d.URL,
		TeamNames:         d.TeamNames,
		TeamMembers:       d.TeamMembers,
		Sender:            d.Sender,
		GroupName:         d.GroupName,
		PrimaryMessageID:  d.PrimaryMessageID,
		RelatedMessageIDs: d.RelatedMessageIDs,
		Timestamp:         d.Timestamp,
		Reactions:         make([]domain.Reaction, 0, len(d.Reactions)),
		Replies:           make([]domain.Reply, 0, len(d.Replies)),
	}
	for _, r := range d.Reactions {
		p.Reactions = append(p.Reactions, *r.toDomain())
	}
	for _, r := range d.Replies {
		p.Replies = append(p.Replies, *r.toDomain())
	}
	return p
}

func toReactionDoc(r *domain.Reaction) reactionDoc {
	return reactionDoc{
		MessageID: r.MessageID,
		Emoji:     r.Emoji,
		Sender:    r.Sender,
		Timestamp: r.Timestamp.UTC(),
		ChatID:    r.ChatID,
	}
}

func (d reactionDoc) toDomain() *domain.Reaction {
	return &domain.Reaction{
		MessageID: d.MessageID,
		Emoji:     d.Emoji,
		Sender:    d.Sender,
		Timestamp: d.Timestamp,
		ChatID:    d.ChatID,
	}
}

func toReplyDoc(r *domain.Reply) replyDoc {
	return replyDoc{
		MessageID:       r.MessageID,
		QuotedMessageID: r.QuotedMessageID,
		Text:            r.Text,
		Sender:          r.Sender,
		Timestamp:       r.Timestamp.UTC(),
		ChatID:          r.ChatID,
	}
}

func (d replyDoc) toDomain() *domain.Reply {
	return &domain.Reply{
		MessageID:       d.MessageID,
		QuotedMessageID: d.QuotedMessageID,
		Text:            d.Text,
		Sender:          d.Sender,
		Timestamp:       d.Timestamp,
		ChatID:          d.ChatID,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
