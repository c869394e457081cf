package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ldi/tempo/internal/engine"
	"github.com/ldi/tempo/pkg/models"
)

// NewServer creates an MCP server exposing the board operations as tools.
// Every tool invocation counts as user activity on the monitor: an agent
// driving the board is a user at the keyboard as far as auto-pause is
// concerned.
func NewServer(board *engine.Board, monitor *engine.ActivityMonitor) *server.MCPServer {
	s := server.NewMCPServer("Tempo", "0.1.0")

	// Task management
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task on the board."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("status", mcp.Description("Initial status (NEW|UP_NEXT|WORKING|IN_PROGRESS|BLOCKED|DONE, defaults to NEW)")),
		mcp.WithString("workspace_id", mcp.Description("Workspace id (defaults to the current workspace)")),
	), createTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters."),
		mcp.WithString("status", mcp.Description("Filter by status")),
		mcp.WithString("workspace_id", mcp.Description("Filter by workspace")),
	), listTasksHandler(board, monitor))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id, including its full status history."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), getTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("edit_task",
		mcp.WithDescription("Edit a task's descriptive fields. Status and history are not editable here."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("task_type", mcp.Description("New task type")),
		mcp.WithString("deadline", mcp.Description("New deadline (RFC 3339)")),
	), editTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("move_task",
		mcp.WithDescription("Move a task one column left or right. Moving onto WORKING does not start the timer; use start_task for that."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("direction", mcp.Description("left or right"), mcp.Required()),
	), moveTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("start_task",
		mcp.WithDescription("Start working on a task. Any other active task is paused at the same instant."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), startTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("pause_task",
		mcp.WithDescription("Pause the task's live session, crediting the elapsed time to its total."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), pauseTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task DONE from any status."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), completeTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task entirely."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), deleteTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("active_task",
		mcp.WithDescription("Get the single currently active (WORKING) task, if any."),
	), activeTaskHandler(board, monitor))

	s.AddTool(mcp.NewTool("time_report",
		mcp.WithDescription("Per-status time breakdown for a task, in milliseconds."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), timeReportHandler(board, monitor))

	s.AddTool(mcp.NewTool("set_working_time",
		mcp.WithDescription("Manually override a task's accumulated working time. A correction tool; bypasses normal session accrual."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithNumber("minutes", mcp.Description("New total working time in minutes"), mcp.Required()),
	), setWorkingTimeHandler(board, monitor))

	// Workspace management
	s.AddTool(mcp.NewTool("list_workspaces",
		mcp.WithDescription("List all workspaces."),
	), listWorkspacesHandler(board, monitor))

	s.AddTool(mcp.NewTool("create_workspace",
		mcp.WithDescription("Create a new workspace."),
		mcp.WithString("name", mcp.Description("Workspace name"), mcp.Required()),
	), createWorkspaceHandler(board, monitor))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func createTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		title := mcp.ParseString(request, "title", "")
		status := models.TaskStatus(mcp.ParseString(request, "status", ""))
		workspaceID := mcp.ParseString(request, "workspace_id", "")

		task, err := board.CreateTask(ctx, title, status, workspaceID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func listTasksHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		status := mcp.ParseString(request, "status", "")
		workspaceID := mcp.ParseString(request, "workspace_id", "")

		tasks := board.Tasks()
		filtered := make([]*models.Task, 0, len(tasks))
		for _, t := range tasks {
			if status != "" && t.Status != models.TaskStatus(status) {
				continue
			}
			if workspaceID != "" && t.WorkspaceID != workspaceID {
				continue
			}
			filtered = append(filtered, t)
		}
		return jsonResult(map[string]any{"tasks": filtered})
	}
}

func getTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")

		task := board.Task(id)
		if task == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		return jsonResult(task)
	}
}

func editTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")
		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}

		var patch models.TaskPatch
		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			patch.Title = &title
		}
		if description, ok := args["description"].(string); ok {
			patch.Description = &description
		}
		if taskType, ok := args["task_type"].(string); ok {
			patch.TaskType = &taskType
		}
		if raw, ok := args["deadline"].(string); ok {
			deadline, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid deadline: %v", err)), nil
			}
			patch.Deadline = &deadline
		}

		if err := board.EditTask(ctx, id, patch); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(board.Task(id))
	}
}

func moveTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")
		direction := mcp.ParseString(request, "direction", "")

		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		if err := board.MoveTask(ctx, id, engine.Direction(direction)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(board.Task(id))
	}
}

func startTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")

		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		if err := board.StartWorking(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(board.Task(id))
	}
}

func pauseTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")

		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		if err := board.Pause(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(board.Task(id))
	}
}

func completeTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")

		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		if err := board.MarkDone(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(board.Task(id))
	}
}

func deleteTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")

		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		if err := board.DeleteTask(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func activeTaskHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		task := board.ActiveTask()
		if task == nil {
			return mcp.NewToolResultText("No task is currently being worked on"), nil
		}
		return jsonResult(task)
	}
}

func timeReportHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")

		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		now := time.Now()
		report := board.TimeReport(id, now)
		byStatus := make(map[string]int64, len(report))
		for status, d := range report {
			byStatus[string(status)] = d.Milliseconds()
		}
		return jsonResult(map[string]any{
			"by_status_ms":   byStatus,
			"worked_time_ms": board.WorkedTime(id, now).Milliseconds(),
		})
	}
}

func setWorkingTimeHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		id := mcp.ParseString(request, "id", "")
		minutes := mcp.ParseFloat64(request, "minutes", -1)

		if board.Task(id) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}
		if minutes < 0 {
			return mcp.NewToolResultError("minutes must be >= 0"), nil
		}
		total := time.Duration(minutes * float64(time.Minute))
		if err := board.SetWorkingTime(ctx, id, total); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(board.Task(id))
	}
}

func listWorkspacesHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		return jsonResult(map[string]any{
			"workspaces":           board.Workspaces(),
			"current_workspace_id": board.CurrentWorkspaceID(),
		})
	}
}

func createWorkspaceHandler(board *engine.Board, monitor *engine.ActivityMonitor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		monitor.Record(time.Now())
		name := mcp.ParseString(request, "name", "")

		w, err := board.CreateWorkspace(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(w)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
