package main

import (
	"context"
	"fmt"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/runtime/events"
	"goa.design/maestro/runtime/executor"
	"goa.design/maestro/runtime/model"
	"goa.design/maestro/runtime/planner"
	"goa.design/maestro/runtime/prompt"
	"goa.design/maestro/runtime/runlog"
	runloginmem "goa.design/maestro/runtime/runlog/inmem"
	"goa.design/maestro/sxl"
	"goa.design/maestro/sxl/grammar"
	"goa.design/maestro/sxl/validate"
)

// cannedPlan stands in for a live model completion. The steps arrive in the
// wrong order on purpose: listOrders needs the customer findCustomer
// produces, and the scheduler reorders them from the context dataflow.
const cannedPlan = "```json\n" + `{
  "message": "Find the customer, then list their recent orders.",
  "steps": [
    {
      "actionId": "listOrders",
      "parameters": {"query": "(Q (F orders o) (S (AS o.id id) (AS o.total total)) (L 5))"}
    },
    {
      "actionId": "findCustomer",
      "parameters": {"email": "ada@example.com"}
    }
  ]
}` + "\n```"

func main() {
	ctx := context.Background()

	// 1) The grammars and actions the host exposes to the model.
	grammars, err := grammar.Builtin()
	if err != nil {
		panic(err)
	}

	actions := action.NewRegistry()
	actions.MustRegister(&action.Descriptor{
		ID:          "findCustomer",
		Description: "Look up a customer record by email address.",
		Parameters:  []action.ParameterSpec{{Name: "email", TypeID: "string"}},
		ContextKey:  "customer",
		Idempotent:  true,
		Handler: func(ctx context.Context, args []any) (any, error) {
			return map[string]string{"id": "cust-42", "email": args[0].(string)}, nil
		},
	})
	actions.MustRegister(&action.Descriptor{
		ID:          "listOrders",
		Description: "List a customer's orders selected by an sxl-sql query.",
		Parameters: []action.ParameterSpec{
			{Name: "customer", FromContext: "customer"},
			{Name: "query", TypeID: "string", DSLID: "sxl-sql"},
		},
		ContextKey: "orders",
		Idempotent: true,
		Handler: func(ctx context.Context, args []any) (any, error) {
			customer := args[0].(map[string]string)
			query := args[1].([]sxl.Node)
			return fmt.Sprintf("orders of %s via %s", customer["id"], query[0]), nil
		},
	})

	// 2) Plan against a scripted model client.
	client := model.ClientFunc(func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return &model.Response{Text: cannedPlan, Model: "demo-1", StopReason: "end_turn"}, nil
	})
	builder := prompt.NewBuilder(actions, grammars)
	pln := planner.New(client, builder, actions, planner.WithProvider("demo"))

	res, err := pln.Plan(ctx, planner.Request{Goal: "Show the last five orders for ada@example.com"})
	if err != nil {
		panic(err)
	}
	fmt.Println("Plan:", res.Plan.Message)

	// 3) Execute with lifecycle events journaled in memory.
	journal := runloginmem.New()
	bus := events.NewBus()
	if _, err := bus.Register(runlog.NewRecorder(journal)); err != nil {
		panic(err)
	}

	binder := action.NewBinder(action.WithDSLResolver(validate.New(grammars)))
	execs, err := executor.Resolve(res.Plan, actions, binder)
	if err != nil {
		panic(err)
	}
	out, err := executor.New(executor.WithBus(bus)).Execute(ctx, execs)
	if err != nil {
		panic(err)
	}

	orders, _, err := action.Value[string](out.Context, "orders")
	if err != nil {
		panic(err)
	}
	fmt.Println("Run:", out.RunID)
	fmt.Println("Result:", orders)

	page, err := journal.List(ctx, out.RunID, "", 50)
	if err != nil {
		panic(err)
	}
	for _, e := range page.Entries {
		fmt.Printf("%-6s %-9s %s\n", e.Kind, e.Type, e.Name)
	}
}
