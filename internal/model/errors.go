// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, bible, content, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryBible      = "bible"
	CategoryContent    = "content"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeRegistrationFailed    = "REGISTRATION_FAILED"
	ErrCodeLogoutFailed          = "LOGOUT_FAILED"
	ErrCodeBranchSwitchFailed    = "BRANCH_SWITCH_FAILED"
	ErrCodeBranchNotFound        = "BRANCH_NOT_FOUND"
	ErrCodeValidation            = "VALIDATION"
	ErrCodeNoteNotFound          = "NOTE_NOT_FOUND"
	ErrCodeConfirmationRequired  = "CONFIRMATION_REQUIRED"
	ErrCodeUnknownTranslation    = "UNKNOWN_TRANSLATION"
	ErrCodeScriptureUnavailable  = "SCRIPTURE_UNAVAILABLE"
	ErrCodeScriptureKeyMissing   = "SCRIPTURE_KEY_MISSING"
	ErrCodeAvatarUploadFailed    = "AVATAR_UPLOAD_FAILED"
	ErrCodeProfileNotFound       = "PROFILE_NOT_FOUND"
	ErrCodeSessionResolveTimeout = "SESSION_RESOLVE_TIMEOUT"
	ErrCodeCSRFValidation        = "CSRF_VALIDATION_FAILED"
	ErrCodeAuthUnavailable       = "AUTH_UNAVAILABLE"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  fmt.Sprintf("ログインに失敗しました: %s", reason),
		Category: CategoryAuth,
		Action:   "メールアドレスとパスワードを確認して再度お試しください。",
	}
}

// NewRegistrationFailedError は登録失敗エラーを生成する。
func NewRegistrationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  fmt.Sprintf("登録に失敗しました: %s", reason),
		Category: CategoryAuth,
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewLogoutFailedError はログアウト失敗エラーを生成する。
func NewLogoutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLogoutFailed,
		Message:  "ログアウトに失敗しました。",
		Category: CategoryAuth,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBranchSwitchFailedError はブランチ切り替え失敗エラーを生成する。
func NewBranchSwitchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeBranchSwitchFailed,
		Message:  "ブランチの切り替えに失敗しました。",
		Category: CategoryContent,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBranchNotFoundError はブランチ未検出エラーを生成する。
func NewBranchNotFoundError(branchID string) *APIError {
	return &APIError{
		Code:     ErrCodeBranchNotFound,
		Message:  fmt.Sprintf("指定されたブランチが見つかりません: %s", branchID),
		Category: CategoryContent,
		Action:   "ブランチ一覧から選択し直してください。",
	}
}

// NewValidationError は送信前の入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を修正してください。",
	}
}

// NewNoteNotFoundError はメモ未検出エラーを生成する。
// 他人のメモへの操作もこのエラーとして扱う。
func NewNoteNotFoundError(noteID string) *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  fmt.Sprintf("指定されたメモが見つかりません: %s", noteID),
		Category: CategoryBible,
		Action:   "メモ一覧を再読み込みしてください。",
	}
}

// NewConfirmationRequiredError は確認なしの削除要求に対するエラーを生成する。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  "削除には確認が必要です。",
		Category: CategoryValidation,
		Action:   "削除してよいか確認してから再度実行してください。この操作は取り消せません。",
	}
}

// NewUnknownTranslationError は未対応の翻訳指定エラーを生成する。
func NewUnknownTranslationError(translation string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownTranslation,
		Message:  fmt.Sprintf("未対応の翻訳です: %s", translation),
		Category: CategoryValidation,
		Action:   "翻訳一覧から選択してください。",
	}
}

// NewScriptureUnavailableError は聖書テキスト取得失敗エラーを生成する。
func NewScriptureUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeScriptureUnavailable,
		Message:  fmt.Sprintf("聖書テキストの取得に失敗しました: %s", reason),
		Category: CategoryBible,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewScriptureKeyMissingError は聖書APIキー未設定エラーを生成する。
func NewScriptureKeyMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeScriptureKeyMissing,
		Message:  "聖書APIキーが設定されていません。",
		Category: CategoryBible,
		Action:   "管理者に聖書APIキーの設定を依頼してください。",
	}
}

// NewAvatarUploadFailedError はプロフィール画像アップロード失敗エラーを生成する。
func NewAvatarUploadFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarUploadFailed,
		Message:  fmt.Sprintf("プロフィール画像のアップロードに失敗しました: %s", reason),
		Category: CategoryContent,
		Action:   "画像ファイルを選び直して再度お試しください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewSessionResolveTimeoutError はセッション状態の確定待ちがタイムアウトした場合のエラーを生成する。
func NewSessionResolveTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionResolveTimeout,
		Message:  "ログイン状態の確認が完了しませんでした。",
		Category: CategorySystem,
		Action:   "ページを再読み込みしてください。",
	}
}

// NewCSRFValidationError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFValidation,
		Message:  "リクエストの検証に失敗しました。",
		Category: CategorySystem,
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewAuthUnavailableError は認証サービスが一時的に利用できない場合のエラーを生成する。
// 資格情報の誤りとは区別し、再試行を促す。
func NewAuthUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthUnavailable,
		Message:  "認証サービスに接続できませんでした。",
		Category: CategorySystem,
		Action:   "しばらくしてから再度お試しください。",
	}
}
