package errors

var (
	// OK is the success envelope value.
	OK = &Errno{Code: 0, HTTP: 200, MessageEN: "success", MessageFR: "succès"}

	ErrInvalidParam  = NewRequestErr(ServiceCommon, 1, "Invalid parameter", "Paramètre invalide")
	ErrRouteNotFound = NewNotFoundErr(ServiceCommon, 1, "Route not found", "Route introuvable")
	ErrInternal      = NewInternalErr(ServiceCommon, 1, "Internal server error", "Erreur interne du serveur")
	ErrDatabase      = NewDatabaseErr(ServiceCommon, 1, "Database error", "Erreur de base de données")
	ErrTimeout       = NewTimeoutErr(ServiceCommon, 1, "Request timeout", "Délai de requête dépassé")
	ErrVectorStore   = NewDatabaseErr(ServiceCommon, 2, "Vector store error", "Erreur de la base vectorielle")
	ErrUnavailable   = NewNetworkErr(ServiceCommon, 1, "Backend unavailable", "Service indisponible")
)
