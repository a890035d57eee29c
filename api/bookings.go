package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service reservation.ReservationUseCase
	auth    *Auth
}

type bookSeatRequest struct {
	TrainID int64 `json:"train_id"`
}

type bookSeatResponse struct {
	Message    string `json:"message"`
	BookingID  int64  `json:"booking_id"`
	TrainID    int64  `json:"train_id"`
	SeatNumber int    `json:"seat_number"`
}

type bookingDetailsResponse struct {
	TrainID    int64  `json:"train_id"`
	SeatNumber int    `json:"seat_number"`
	Timestamp  string `json:"timestamp"`
}

func NewBookingHandler(service reservation.ReservationUseCase, auth *Auth) *BookingHandler {
	return &BookingHandler{service: service, auth: auth}
}

func (h *BookingHandler) Register(router gin.IRouter) {
	router.POST("/book_seat", h.auth.Required(h.bookSeat))
	router.GET("/booking_details", h.auth.Required(h.bookingDetails))
}

func (h *BookingHandler) bookSeat(c *gin.Context, user *domain.User) {
	var req bookSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.TrainID <= 0 {
		abortWithError(c, domain.Invalid("train_id must be a positive integer"))
		return
	}

	booking, err := h.service.Reserve(c.Request.Context(), req.TrainID, user.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bookSeatResponse{
		Message:    "Seat booked successfully",
		BookingID:  booking.ID,
		TrainID:    booking.TrainID,
		SeatNumber: booking.SeatNumber,
	})
}

func (h *BookingHandler) bookingDetails(c *gin.Context, user *domain.User) {
	bookings, err := h.service.BookingsForUser(c.Request.Context(), user.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := make([]bookingDetailsResponse, 0, len(bookings))
	for _, b := range bookings {
		resp = append(resp, bookingDetailsResponse{
			TrainID:    b.TrainID,
			SeatNumber: b.SeatNumber,
			Timestamp:  b.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, resp)
}
