package api

import (
	"StockCast/internal/domain/models"
	xhttp "StockCast/pkg/http"
)

// domainErrors maps the domain sentinels onto HTTP statuses.
var domainErrors = []xhttp.ErrorRule{
	{Target: models.ErrArtifactNotFound, Build: func(msg string) *xhttp.AppError {
		return xhttp.NotFoundError(msg + "; train the model first with POST /api/train/{ticker}")
	}},
	{Target: models.ErrInsufficientData, Build: xhttp.UnprocessableError},
	{Target: models.ErrInsufficientSeed, Build: xhttp.UnprocessableError},
	{Target: models.ErrInvalidModelType, Build: xhttp.BadRequestError},
	{Target: models.ErrInvalidPeriodUnit, Build: xhttp.BadRequestError},
	{Target: models.ErrTrainingInProgress, Build: xhttp.ConflictError},
	{Target: models.ErrDataUnavailable, Build: xhttp.UnavailableError},
	{Target: models.ErrRateLimited, Build: xhttp.UnavailableError},
	{Target: models.ErrTransientFetch, Build: xhttp.UnavailableError},
}

func appError(err error) *xhttp.AppError {
	return xhttp.FromError(err, domainErrors...)
}
