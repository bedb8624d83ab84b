package handler

import (
	"context"
	"net/http"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/dto"
	"hackathon-gallery/project/service"

	"go.uber.org/zap"
)

// ProjectsHandler はギャラリー用の作品一覧を返します
type ProjectsHandler struct {
	gallery service.GalleryService
	logger  *zap.Logger
}

// NewProjectsHandler は作品一覧ハンドラーを作成します
func NewProjectsHandler(gallery service.GalleryService, logger *zap.Logger) *ProjectsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectsHandler{gallery: gallery, logger: logger}
}

// ServeHTTP は GET /api/projects です
func (h *ProjectsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	views, summary, err := h.gallery.ListProjects(ctx)
	if err != nil {
		writeError(w, h.logger, "list_projects_failed", err)
		return
	}

	resp := dto.ProjectListResponse{
		Projects:   make([]dto.ProjectResponse, 0, len(views)),
		TotalCount: summary.TotalCount,
	}
	if summary.LastUpdated != nil {
		s := formatTime(*summary.LastUpdated)
		resp.LastUpdated = &s
	}
	for _, v := range views {
		resp.Projects = append(resp.Projects, toProjectResponse(v))
	}

	writeJSON(w, http.StatusOK, resp)
}

func toProjectResponse(v service.ProjectView) dto.ProjectResponse {
	p := v.Record
	out := dto.ProjectResponse{
		Name:              p.Name,
		Description:       p.Description,
		URL:               p.URL,
		TeamName:          p.TeamName(),
		TeamMembers:       p.TeamMembersText(),
		Sender:            p.Sender,
		GroupName:         p.GroupName,
		MessageID:         p.PrimaryMessageID,
		RelatedMessageIDs: append([]string{}, p.RelatedMessageIDs...),
		Timestamp:         formatTime(p.Timestamp),
		Reactions:         make([]dto.ReactionResponse, 0, len(p.Reactions)),
		Replies:           make([]dto.ReplyResponse, 0, len(p.Replies)),
		ReactionCounts:    v.ReactionCounts,
		TotalReactions:    v.TotalReactions,
		TotalReplies:      v.TotalReplies,
	}
	for _, r := range p.Reactions {
		out.Reactions = append(out.Reactions, toReactionResponse(r))
	}
	for _, r := range p.Replies {
		out.Replies = append(out.Replies, toReplyResponse(r))
	}
	return out
}

func toReactionResponse(r domain.Reaction) dto.ReactionResponse {
	return dto.ReactionResponse{
		MessageID: r.MessageID,
		Emoji:     r.Emoji,
		Sender:    r.Sender,
		Timestamp: formatTime(r.Timestamp),
		ChatID:    r.ChatID,
	}
}

func toReplyResponse(r domain.Reply) dto.ReplyResponse {
	return dto.ReplyResponse{
		MessageID:       r.MessageID,
		QuotedMessageID: r.QuotedMessageID,
		Text:            r.Text,
		Sender:          r.Sender,
		Timestamp:       formatTime(r.Timestamp),
		ChatID:          r.ChatID,
	}
}
