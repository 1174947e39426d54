package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/iv9eni/ai-email-chat/internal/services"
)

// ConversationHandler exposes conversation browsing endpoints
type ConversationHandler struct {
	conversationService *services.ConversationService
}

// NewConversationHandler creates a new ConversationHandler instance
func NewConversationHandler(conversationService *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
	}
}

// ConversationResponse represents a conversation summary
type ConversationResponse struct {
	ID               uint   `json:"id"`
	AccountID        uint   `json:"account_id"`
	ParticipantEmail string `json:"participant_email"`
	CreatedAt        int64  `json:"created_at"`
	LastMessageAt    int64  `json:"last_message_at"`
}

// MessageResponse represents one turn of a conversation
type MessageResponse struct {
	ID             uint   `json:"id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Subject        string `json:"subject,omitempty"`
	EmailMessageID string `json:"email_message_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

func toConversationResponse(conv *models.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:               conv.ID,
		AccountID:        conv.AccountID,
		ParticipantEmail: conv.ParticipantEmail,
		CreatedAt:        conv.CreatedAt.Unix(),
		LastMessageAt:    conv.LastMessageAt.Unix(),
	}
}

func toMessageResponse(msg *models.Message) MessageResponse {
	resp := MessageResponse{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		Subject:   msg.Subject,
		CreatedAt: msg.CreatedAt.Unix(),
	}
	if msg.EmailMessageID != nil {
		resp.EmailMessageID = *msg.EmailMessageID
	}
	return resp
}

// ListConversations returns conversations, most recently active first
// GET /api/conversations?account_id=&page=&limit=
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	accountID, _ := strconv.ParseUint(c.DefaultQuery("account_id", "0"), 10, 32)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	conversations, total, err := h.conversationService.ListConversations(uint(accountID), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve conversations",
			},
		})
		return
	}

	response := make([]ConversationResponse, 0, len(conversations))
	for i := range conversations {
		response = append(response, toConversationResponse(&conversations[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"conversations": response,
			"total":         total,
			"page":          page,
			"limit":         limit,
		},
	})
}

// GetConversation returns one conversation with its messages in order
// GET /api/conversations/:id
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid conversation ID",
			},
		})
		return
	}

	conv, err := h.conversationService.GetConversation(uint(id))
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Conversation not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve conversation",
			},
		})
		return
	}

	messages := make([]MessageResponse, 0, len(conv.Messages))
	for i := range conv.Messages {
		messages = append(messages, toMessageResponse(&conv.Messages[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"conversation": toConversationResponse(conv),
			"messages":     messages,
		},
	})
}

// DeleteConversation removes a conversation and its messages
// DELETE /api/conversations/:id
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid conversation ID",
			},
		})
		return
	}

	if err := h.conversationService.DeleteConversation(uint(id)); err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Conversation not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to delete conversation",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
