package errors

// docmind 服务代码: 21
var (
	// 请求参数错误 (类别 01)
	ErrMissingURL      = NewRequestErr(ServiceDocmind, 1, "URL is required", "URL manquante.")
	ErrInvalidPDF      = NewRequestErr(ServiceDocmind, 2, "Invalid PDF document", "PDF invalide.")
	ErrMissingQuestion = NewRequestErr(ServiceDocmind, 3, "question, job_id and entity are required", "question, job_id et entreprise sont requis.")

	// 资源错误 (类别 04)
	ErrJobNotFound     = NewNotFoundErr(ServiceDocmind, 1, "Job not found", "Job introuvable.")
	ErrEntityNotFound  = NewNotFoundErr(ServiceDocmind, 2, "Unknown entity", "Entreprise inconnue.")
	ErrSummaryNotFound = NewNotFoundErr(ServiceDocmind, 3, "Summary not found", "Résumé introuvable.")

	// 内部错误 (类别 07)
	ErrPipelineFailed = NewInternalErr(ServiceDocmind, 1, "Document processing failed", "Échec du traitement du document")
	ErrAnswerFailed   = NewInternalErr(ServiceDocmind, 2, "Answer generation failed", "Échec de génération de la réponse")

	// 网络错误 (类别 10)
	ErrDownloadFailed = NewNetworkErr(ServiceDocmind, 1, "Document download failed", "Échec du téléchargement")

	// 配置错误 (类别 12)
	ErrLanguagePairMissing = NewConfigErr(ServiceDocmind, 1, "Translation language pair is not installed", "Modèle de traduction manquant")
)
