package rest

import (
	"errors"
	"strconv"

	domainTracker "github.com/AzielCF/az-track/domains/tracker"
	pkgError "github.com/AzielCF/az-track/pkg/error"
	"github.com/AzielCF/az-track/pkg/utils"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/gofiber/fiber/v2"
)

type Subscription struct {
	Service domainTracker.ITrackerUsecase
}

func InitRestSubscription(app fiber.Router, service domainTracker.ITrackerUsecase) Subscription {
	rest := Subscription{Service: service}
	app.Post("/subscriptions", rest.Subscribe)
	app.Get("/subscriptions", rest.ListAll)
	app.Get("/subscriptions/:id", rest.Get)
	app.Delete("/subscriptions/:id", rest.Unsubscribe)
	app.Get("/accounts/tracked", rest.Tracked)
	app.Get("/accounts/:account_id/subscriptions", rest.ListByAccount)
	return rest
}

func (controller *Subscription) Subscribe(c *fiber.Ctx) error {
	var request domainTracker.SubscribeRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	sub, err := controller.Service.Subscribe(c.UserContext(), request)
	utils.PanicIfNeeded(asRestError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create subscription",
		Results: sub,
	})
}

func (controller *Subscription) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "subscription id is required",
		})
	}

	sub, err := controller.Service.GetSubscription(c.UserContext(), id)
	utils.PanicIfNeeded(asRestError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch subscription",
		Results: sub,
	})
}

func (controller *Subscription) Unsubscribe(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "subscription id is required",
		})
	}

	err := controller.Service.Unsubscribe(c.UserContext(), id)
	utils.PanicIfNeeded(asRestError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success remove subscription",
	})
}

func (controller *Subscription) ListAll(c *fiber.Ctx) error {
	subs, err := controller.Service.ListAllSubscriptions(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch subscriptions",
		Results: subs,
	})
}

func (controller *Subscription) ListByAccount(c *fiber.Ctx) error {
	accountID, err := strconv.ParseInt(c.Params("account_id"), 10, 64)
	if err != nil || accountID < 1 {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "account_id must be a positive integer",
		})
	}

	subs, err := controller.Service.ListSubscriptions(c.UserContext(), domain.AccountID(accountID))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch subscriptions",
		Results: subs,
	})
}

func (controller *Subscription) Tracked(c *fiber.Ctx) error {
	accounts, err := controller.Service.TrackedAccounts(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch tracked accounts",
		Results: accounts,
	})
}

// asRestError maps domain errors onto the typed errors the recovery
// middleware knows how to render.
func asRestError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrDuplicateSubscription):
		return pkgError.ValidationError(err.Error())
	default:
		return err
	}
}
