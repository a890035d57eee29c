package api

import (
	"net/http"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/trains"
	"github.com/gin-gonic/gin"
)

type TrainHandler struct {
	service trains.TrainUseCase
	auth    *Auth
}

type addTrainRequest struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	TotalSeats  int    `json:"total_seats"`
}

type availabilityResponse struct {
	TrainID        int64  `json:"train_id"`
	Name           string `json:"name"`
	AvailableSeats int    `json:"available_seats"`
}

func NewTrainHandler(service trains.TrainUseCase, auth *Auth) *TrainHandler {
	return &TrainHandler{service: service, auth: auth}
}

func (h *TrainHandler) Register(router gin.IRouter) {
	router.POST("/admin/add_train", h.auth.Admin(h.addTrain))
	router.GET("/check_availability", h.checkAvailability)
}

func (h *TrainHandler) addTrain(c *gin.Context) {
	var req addTrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	train, err := h.service.Create(c.Request.Context(), trains.CreateTrainInput{
		Name:        req.Name,
		Source:      req.Source,
		Destination: req.Destination,
		Capacity:    req.TotalSeats,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, train)
}

func (h *TrainHandler) checkAvailability(c *gin.Context) {
	source := c.Query("source")
	destination := c.Query("destination")
	if source == "" || destination == "" {
		abortWithError(c, domain.Invalid("source and destination are required"))
		return
	}

	found, err := h.service.FindByRoute(c.Request.Context(), source, destination)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := make([]availabilityResponse, 0, len(found))
	for _, t := range found {
		resp = append(resp, availabilityResponse{
			TrainID:        t.ID,
			Name:           t.Name,
			AvailableSeats: t.AvailableSeats,
		})
	}
	c.JSON(http.StatusOK, resp)
}
