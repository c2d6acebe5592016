package embedding

// Gemini嵌入任务类型
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// GeminiPart 内容片段
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent 请求内容
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

// GeminiEmbedRequest 单条嵌入请求
type GeminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  GeminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

// GeminiBatchEmbedRequest batchEmbedContents请求体
type GeminiBatchEmbedRequest struct {
	Requests []GeminiEmbedRequest `json:"requests"`
}

// GeminiEmbedding 单个嵌入结果
type GeminiEmbedding struct {
	Values []float32 `json:"values"`
}

// GeminiBatchEmbedResponse batchEmbedContents响应体
type GeminiBatchEmbedResponse struct {
	Embeddings []GeminiEmbedding `json:"embeddings"`
}

// GeminiErrorResponse Google API错误响应
type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
