package service

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionEvaluator avalia condições de step como expressões booleanas
// sandboxed (sem acesso a funções do host). Programas compilados ficam em cache.
//
// Ambiente disponível:
//
//	params        parâmetros da execução
//	steps.<id>    {status, output} dos steps já finalizados
//	user_id, execution_id
type ConditionEvaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{programs: make(map[string]*vm.Program)}
}

// Compile valida a expressão (usado no registro do workflow)
func (c *ConditionEvaluator) Compile(expression string) (*vm.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.programs[expression] = program
	c.mu.Unlock()
	return program, nil
}

func (c *ConditionEvaluator) Evaluate(expression string, env map[string]any) (bool, error) {
	program, err := c.Compile(expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, want bool", expression, out)
	}
	return result, nil
}
