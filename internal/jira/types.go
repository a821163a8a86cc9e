package jira

import "strings"

// Priority идентификатор приоритета в Jira
type Priority string

const (
	PriorityHigh   Priority = "2"
	PriorityMedium Priority = "3"
)

// Ticket задача в Jira
type Ticket struct {
	ID     string       `json:"id"`
	Key    string       `json:"key"`
	Fields TicketFields `json:"fields"`
}

// TicketFields поля задачи, которые мы запрашиваем в поиске
type TicketFields struct {
	Summary                  string       `json:"summary,omitempty"`
	Status                   *Status      `json:"status,omitempty"`
	Comment                  *CommentPage `json:"comment,omitempty"`
	Labels                   []string     `json:"labels,omitempty"`
	StatusCategoryChangeDate string       `json:"statuscategorychangedate,omitempty"`
}

type Status struct {
	Name string `json:"name"`
}

type CommentPage struct {
	Comments []Comment `json:"comments"`
}

type Comment struct {
	Body string `json:"body"`
}

// StatusName возвращает имя статуса задачи или пустую строку
func (t Ticket) StatusName() string {
	if t.Fields.Status == nil {
		return ""
	}
	return t.Fields.Status.Name
}

// ApprovalDate дата последней смены категории статуса, используется как дата одобрения
func (t Ticket) ApprovalDate() string {
	return t.Fields.StatusCategoryChangeDate
}

// RejectionReason склеивает тексты комментариев от старых к новым
func (t Ticket) RejectionReason() string {
	if t.Fields.Comment == nil {
		return ""
	}
	bodies := make([]string, 0, len(t.Fields.Comment.Comments))
	for _, c := range t.Fields.Comment.Comments {
		bodies = append(bodies, c.Body)
	}
	return strings.Join(bodies, "|")
}

// IssueInput данные для создания или обновления задачи
type IssueInput struct {
	Title        string
	Description  string
	Priority     Priority
	Labels       []string
	CustomFields map[string]any
}

// SearchQuery тело запроса POST /search
type SearchQuery struct {
	JQL          string   `json:"jql"`
	Fields       []string `json:"fields"`
	FieldsByKeys bool     `json:"fieldsByKeys"`
	MaxResults   int      `json:"maxResults"`
	StartAt      int      `json:"startAt"`
}

// SearchResult ответ поиска
type SearchResult struct {
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Total      int      `json:"total"`
	Issues     []Ticket `json:"issues"`
}

type issueRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type transitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
	Update *transitionUpdate `json:"update,omitempty"`
}

type transitionUpdate struct {
	Comment []commentOp `json:"comment"`
}

type commentOp struct {
	Add Comment `json:"add"`
}
