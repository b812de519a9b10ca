package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"adjusterhub/internal/ai"
	"adjusterhub/internal/apperr"
	"adjusterhub/internal/model"
	"adjusterhub/internal/pkg/pdfextract"
	"adjusterhub/internal/pkg/textutil"
	"adjusterhub/internal/repository"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
	defaultTopK         = 5
	embeddingBatchSize  = 10
)

var (
	ErrDocumentNotFound  = apperr.New(apperr.KindNotFound, "document not found")
	ErrFileTooLarge      = apperr.WithCode(apperr.KindFileUpload, 41301, "file exceeds upload limit")
	ErrFileTypeRejected  = apperr.WithCode(apperr.KindFileUpload, 41302, "file type not allowed")
	ErrFileEmpty         = apperr.WithCode(apperr.KindFileUpload, 41303, "file is empty")
	ErrNoSearchableText  = apperr.WithCode(apperr.KindValidation, 40030, "no searchable documents")
	ErrAssistantDisabled = apperr.WithCode(apperr.KindExternalService, 50210, "assistant model is not configured")
)

var allowedUploadTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/webp",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var documentCategories = map[string]bool{
	model.DocumentLicense:       true,
	model.DocumentCertification: true,
	model.DocumentInsurance:     true,
	model.DocumentTax:           true,
	model.DocumentClaimPhoto:    true,
	model.DocumentReport:        true,
	model.DocumentOther:         true,
}

type DocumentService struct {
	docRepo   *repository.DocumentRepository
	claimRepo *repository.ClaimRepository
	llm       *ai.Client
	embConfig ai.Config
	chat      ai.Config
	root      string
	maxBytes  int64
	log       *zap.Logger
}

type UploadInput struct {
	Category string
	ClaimID  *uint
	FileName string
	Content  io.Reader
}

type DocumentListFilter struct {
	Category string
	ClaimID  uint
}

type AskInput struct {
	Question    string
	DocumentIDs []uint
	TopK        int
}

type AskResult struct {
	Answer string                `json:"answer"`
	Chunks []model.DocumentChunk `json:"chunks"`
}

func NewDocumentService(
	docRepo *repository.DocumentRepository,
	claimRepo *repository.ClaimRepository,
	llm *ai.Client,
	embConfig ai.Config,
	chat ai.Config,
	root string,
	maxBytes int64,
	log *zap.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:   docRepo,
		claimRepo: claimRepo,
		llm:       llm,
		embConfig: embConfig,
		chat:      chat,
		root:      root,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// Upload sniffs, stores and indexes a file. Text from PDFs and plain text files is
// chunked for Ask; embeddings are added when an embedding model is configured.
func (s *DocumentService) Upload(ctx context.Context, p Principal, input UploadInput) (*model.Document, error) {
	category := strings.ToLower(strings.TrimSpace(input.Category))
	if !documentCategories[category] {
		return nil, ErrInvalidInput.WithDetails(map[string]string{"category": "oneof"})
	}
	if input.ClaimID != nil {
		if err := s.checkClaimAccess(p, *input.ClaimID); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(input.Content, s.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFileUpload, "read upload failed", err)
	}
	if len(data) == 0 {
		return nil, ErrFileEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedUploadTypes...) {
		return nil, ErrFileTypeRejected.WithDetails(map[string]string{"mime_type": mtype.String()})
	}

	sum := sha256.Sum256(data)
	rel := filepath.Join(strconv.FormatUint(uint64(p.UserID), 10), uuid.NewString()+mtype.Extension())
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return nil, fmt.Errorf("write document failed: %w", err)
	}

	name := filepath.Base(strings.TrimSpace(input.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload" + mtype.Extension()
	}
	doc := &model.Document{
		UserID:      p.UserID,
		ClaimID:     input.ClaimID,
		Category:    category,
		Name:        textutil.Truncate(name, 256),
		MimeType:    mtype.String(),
		SizeBytes:   int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		StoragePath: rel,
	}
	if err := s.docRepo.Create(doc); err != nil {
		_ = os.Remove(full)
		return nil, err
	}

	count, err := s.index(ctx, doc, mtype, data)
	if err != nil {
		s.log.Warn("index document failed", zap.Uint("document_id", doc.ID), zap.Error(err))
	} else {
		doc.ChunkCount = count
	}
	return doc, nil
}

func (s *DocumentService) index(ctx context.Context, doc *model.Document, mtype *mimetype.MIME, data []byte) (int, error) {
	var text string
	switch {
	case mtype.Is("application/pdf"):
		extracted, err := pdfextract.ExtractText(data)
		if err != nil {
			return 0, err
		}
		text = extracted
	case mtype.Is("text/plain"):
		text = string(data)
	default:
		return 0, nil
	}
	pieces := ai.ChunkText(strings.TrimSpace(text), defaultChunkSize, defaultChunkOverlap)
	if len(pieces) == 0 {
		return 0, nil
	}
	chunks := make([]model.DocumentChunk, 0, len(pieces))
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, model.DocumentChunk{DocumentID: doc.ID, Content: piece})
	}

	if s.embConfig.Configured() {
		for i := 0; i < len(chunks); i += embeddingBatchSize {
			end := i + embeddingBatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			texts := make([]string, 0, end-i)
			for _, c := range chunks[i:end] {
				texts = append(texts, c.Content)
			}
			vectors, err := s.llm.EmbedBatch(ctx, s.embConfig, texts)
			if err != nil {
				return 0, err
			}
			for j := range vectors {
				chunks[i+j].SetEmbedding(vectors[j])
			}
		}
	}

	if err := s.docRepo.CreateChunks(chunks); err != nil {
		return 0, err
	}
	if err := s.docRepo.UpdateChunkCount(doc.ID, len(chunks)); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// List returns the caller's own documents. Firm users asking for a claim of their firm
// see every document attached to it.
func (s *DocumentService) List(p Principal, filter DocumentListFilter) ([]model.Document, error) {
	q := repository.DocumentFilter{
		UserID:   p.UserID,
		ClaimID:  filter.ClaimID,
		Category: strings.ToLower(strings.TrimSpace(filter.Category)),
	}
	if filter.ClaimID != 0 && p.Role != model.RoleAdjuster {
		if err := s.checkClaimAccess(p, filter.ClaimID); err != nil {
			return nil, err
		}
		q.UserID = 0
	}
	return s.docRepo.List(q)
}

// Open returns the document row and an open handle to its file. The caller closes it.
func (s *DocumentService) Open(p Principal, id uint) (*model.Document, *os.File, error) {
	doc, err := s.visible(p, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.root, doc.StoragePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrDocumentNotFound
		}
		return nil, nil, fmt.Errorf("open document failed: %w", err)
	}
	return doc, f, nil
}

func (s *DocumentService) Delete(p Principal, id uint) error {
	doc, err := s.docRepo.GetByID(id)
	if err != nil {
		return err
	}
	if doc == nil || (doc.UserID != p.UserID && p.Role != model.RoleAdmin) {
		return ErrDocumentNotFound
	}
	if err := s.docRepo.Delete(doc.ID); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, doc.StoragePath)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("remove document file failed", zap.Uint("document_id", doc.ID), zap.Error(err))
	}
	return nil
}

// Ask answers a question from the caller's documents. Chunks are ranked by cosine
// similarity to the question embedding and the top k go into the prompt.
func (s *DocumentService) Ask(ctx context.Context, p Principal, input AskInput) (*AskResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrInvalidInput
	}
	if !s.embConfig.Configured() || !s.chat.Configured() {
		return nil, ErrAssistantDisabled
	}
	topK := input.TopK
	if topK <= 0 || topK > 20 {
		topK = defaultTopK
	}

	var docIDs []uint
	if len(input.DocumentIDs) > 0 {
		for _, id := range input.DocumentIDs {
			if _, err := s.visible(p, id); err == nil {
				docIDs = append(docIDs, id)
			}
		}
	} else {
		docs, err := s.docRepo.List(repository.DocumentFilter{UserID: p.UserID})
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			docIDs = append(docIDs, d.ID)
		}
	}
	if len(docIDs) == 0 {
		return nil, ErrNoSearchableText
	}

	chunks, err := s.docRepo.ListChunksByDocumentIDs(docIDs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoSearchableText
	}

	queryVec, err := s.llm.Embed(ctx, s.embConfig, question)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalService, "embedding request failed", err)
	}
	scores := make([]float32, len(chunks))
	for i := range chunks {
		scores[i] = ai.CosineSimilarity(queryVec, chunks[i].EmbeddingVector())
	}
	selected := make([]model.DocumentChunk, 0, topK)
	var contextBlock strings.Builder
	for _, i := range ai.TopK(scores, topK) {
		selected = append(selected, chunks[i])
		contextBlock.WriteString("\n---\n")
		contextBlock.WriteString(chunks[i].Content)
	}
	contextBlock.WriteString("\n---")

	messages := []ai.ChatMessage{
		{Role: "system", Content: "You help insurance adjusters find facts in their own documents. Answer only from the context. If the context does not contain the answer, say so."},
		{Role: "user", Content: "Context:" + contextBlock.String() + "\n\nQuestion: " + question + "\n\nAnswer:"},
	}
	answer, err := s.llm.Complete(ctx, s.chat, messages)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalService, "assistant request failed", err)
	}
	return &AskResult{Answer: strings.TrimSpace(answer), Chunks: selected}, nil
}

func (s *DocumentService) visible(p Principal, id uint) (*model.Document, error) {
	doc, err := s.docRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.UserID == p.UserID || p.Role == model.RoleAdmin {
		return doc, nil
	}
	if doc.ClaimID != nil && p.Role == model.RoleFirm {
		if err := s.checkClaimAccess(p, *doc.ClaimID); err == nil {
			return doc, nil
		}
	}
	return nil, ErrDocumentNotFound
}

func (s *DocumentService) checkClaimAccess(p Principal, claimID uint) error {
	claim, err := s.claimRepo.GetByID(claimID)
	if err != nil {
		return err
	}
	if claim == nil {
		return ErrClaimNotFound
	}
	switch {
	case p.Role == model.RoleAdmin:
	case p.Role == model.RoleFirm && claim.FirmID == p.FirmID:
	case p.Role == model.RoleAdjuster && isAssignee(p, claim):
	default:
		return ErrForbidden
	}
	return nil
}
