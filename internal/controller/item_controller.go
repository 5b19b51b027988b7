package controller

import (
	"fmt"
	"io"

	"visual-search-be/internal/dto"
	"visual-search-be/internal/pkg/serverutils"
	"visual-search-be/internal/service"
	"visual-search-be/pkg/apperrors"

	"github.com/gofiber/fiber/v2"
)

type IItemController interface {
	RegisterRoutes(r fiber.Router)
	Upload(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Reanalyze(ctx *fiber.Ctx) error
}

type itemController struct {
	itemService service.IItemService
}

func NewItemController(itemService service.IItemService) IItemController {
	return &itemController{
		itemService: itemService,
	}
}

func (c *itemController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/item/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Upload)
	h.Get("", c.List)
	h.Get(":id", c.Show)
	h.Delete(":id", c.Delete)
	h.Post(":id/reanalyze", c.Reanalyze)
}

func (c *itemController) Upload(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		return apperrors.Input(fmt.Errorf("%w: multipart field 'file' is required", apperrors.ErrInvalidInput))
	}
	f, err := file.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	res, err := c.itemService.Upload(ctx.UserContext(), userId, &dto.UploadItemRequest{
		Filename: file.Filename,
		MimeType: file.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Success upload item", res))
}

func (c *itemController) List(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ListItemsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return apperrors.Input(err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.itemService.List(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list items", res))
}

func (c *itemController) Show(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := serverutils.ParamID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.itemService.Show(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show item", res))
}

func (c *itemController) Delete(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := serverutils.ParamID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.itemService.Delete(ctx.UserContext(), userId, id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete item", nil))
}

func (c *itemController) Reanalyze(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := serverutils.ParamID(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.ReanalyzeRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return apperrors.Input(err)
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.itemService.Reanalyze(ctx.UserContext(), userId, id, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Success request re-analysis", res))
}
