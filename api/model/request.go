package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 返回分页偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// SessionURI 路径中的会话ID
type SessionURI struct {
	ID string `uri:"id" binding:"required"` // 会话ID
}

// UploadQuery 文档上传的查询参数
type UploadQuery struct {
	Async bool `form:"async"` // 是否在后台处理
}

// AskRequest 问答请求
type AskRequest struct {
	Question string `json:"question" binding:"required"` // 问题内容
}
